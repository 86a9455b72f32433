// Package kind defines the closed set of data-kind discriminators.
//
// Every checksum node carries a Kind. The numeric values are part of the
// wire format: they are written as a single byte in front of every node and
// mixed into every checksum, so they must never be renumbered.
package kind

import "fmt"

// Kind identifies how a node's payload is (de)serialized and which typed
// value it reconstructs into.
type Kind uint8

// Composite kinds: internal nodes whose children are fixed fields.
const (
	Null          Kind = 0
	SolutionState Kind = 1
	ProjectState  Kind = 2
	DocumentState Kind = 3
)

// Collection kinds: internal nodes whose children are a homogeneous list.
const (
	Projects            Kind = 10
	Documents           Kind = 11
	AdditionalDocuments Kind = 12
	ProjectReferences   Kind = 13
	MetadataReferences  Kind = 14
	AnalyzerReferences  Kind = 15
)

// Leaf kinds: assets wrapping one directly serializable value.
const (
	SolutionAttributes Kind = 20
	ProjectAttributes  Kind = 21
	DocumentAttributes Kind = 22
	CompilationOptions Kind = 23
	ParseOptions       Kind = 24
	ProjectReference   Kind = 25
	MetadataReference  Kind = 26
	AnalyzerReference  Kind = 27
	SourceText         Kind = 28
	OptionSet          Kind = 29
)

var names = map[Kind]string{
	Null:                "Null",
	SolutionState:       "SolutionState",
	ProjectState:        "ProjectState",
	DocumentState:       "DocumentState",
	Projects:            "Projects",
	Documents:           "Documents",
	AdditionalDocuments: "AdditionalDocuments",
	ProjectReferences:   "ProjectReferences",
	MetadataReferences:  "MetadataReferences",
	AnalyzerReferences:  "AnalyzerReferences",
	SolutionAttributes:  "SolutionAttributes",
	ProjectAttributes:   "ProjectAttributes",
	DocumentAttributes:  "DocumentAttributes",
	CompilationOptions:  "CompilationOptions",
	ParseOptions:        "ParseOptions",
	ProjectReference:    "ProjectReference",
	MetadataReference:   "MetadataReference",
	AnalyzerReference:   "AnalyzerReference",
	SourceText:          "SourceText",
	OptionSet:           "OptionSet",
}

// String returns the kind name, or "Kind(n)" for unknown values.
func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Byte returns the wire byte.
func (k Kind) Byte() uint8 { return uint8(k) }

// IsKnown reports whether k is one of the defined kinds.
func (k Kind) IsKnown() bool {
	_, ok := names[k]
	return ok && k != Null
}

// IsComposite reports whether k is a fixed-field internal node.
func (k Kind) IsComposite() bool {
	return k == SolutionState || k == ProjectState || k == DocumentState
}

// IsCollection reports whether k is a homogeneous list node.
func (k Kind) IsCollection() bool {
	return k >= Projects && k <= AnalyzerReferences
}

// IsInternal reports whether nodes of kind k carry children rather than a payload.
func (k Kind) IsInternal() bool {
	return k.IsComposite() || k.IsCollection()
}

// IsLeaf reports whether k is an asset kind.
func (k Kind) IsLeaf() bool {
	return k >= SolutionAttributes && k <= OptionSet
}

// Parse resolves a kind by its name.
func Parse(name string) (Kind, error) {
	for k, n := range names {
		if n == name {
			return k, nil
		}
	}
	return Null, fmt.Errorf("unknown kind %q", name)
}

// Collections lists every collection kind in ascending order.
func Collections() []Kind {
	return []Kind{Projects, Documents, AdditionalDocuments, ProjectReferences, MetadataReferences, AnalyzerReferences}
}

// Leaves lists every leaf kind in ascending order.
func Leaves() []Kind {
	return []Kind{
		SolutionAttributes, ProjectAttributes, DocumentAttributes,
		CompilationOptions, ParseOptions, ProjectReference,
		MetadataReference, AnalyzerReference, SourceText, OptionSet,
	}
}
