// Package builder walks an immutable solution state and produces its
// checksum tree, reusing nodes cached for unchanged state objects.
//
// # Field order
//
// The order in which a composite combines its children is part of the wire
// contract. Consumers decode positionally, so these orders never change
// without a new kind number:
//
//	SolutionState: SolutionAttributes, Projects*, AnalyzerReferences*, OptionSet
//	ProjectState:  ProjectAttributes, CompilationOptions, ParseOptions,
//	               Documents*, ProjectReferences*, MetadataReferences*,
//	               AnalyzerReferences*, AdditionalDocuments*
//	DocumentState: DocumentAttributes, SourceText
//
// Fields marked * are collections inlined into the composite; the rest are
// checksum references. An absent optional value is the Null checksum.
// Projects are ordered by id (the solution state keeps them sorted);
// documents and references keep their declared order.
//
// # Caching
//
// Every state object and every leaf value is looked up in the identity
// cache before anything is encoded or hashed. Editing one document creates
// new Document, Project and Solution objects along the path to the root;
// everything else keeps its identity and is served from the cache.
//
// Unsupported languages are never filtered here. The builder hashes exactly
// what it is given; filtering happens on reconstruction.
package builder
