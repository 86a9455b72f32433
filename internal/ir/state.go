package ir

import (
	"fmt"
	"slices"
)

// DocumentState is one immutable document snapshot.
type DocumentState struct {
	attributes *DocumentAttributes
	text       *SourceText
}

// NewDocumentState builds a document. attributes must not be nil.
func NewDocumentState(attributes *DocumentAttributes, text *SourceText) *DocumentState {
	if attributes == nil {
		panic("ir: NewDocumentState requires attributes")
	}
	return &DocumentState{attributes: attributes, text: text}
}

// ID returns the document id.
func (d *DocumentState) ID() DocumentID { return d.attributes.ID }

// Attributes returns the shared attributes value. Callers must not mutate it.
func (d *DocumentState) Attributes() *DocumentAttributes { return d.attributes }

// Text returns the shared text value. Callers must not mutate it.
func (d *DocumentState) Text() *SourceText { return d.text }

// WithText returns a new document sharing the attributes of d.
func (d *DocumentState) WithText(text *SourceText) *DocumentState {
	return &DocumentState{attributes: d.attributes, text: text}
}

// ProjectState is one immutable project snapshot.
//
// Slices returned by accessors are shared; callers must not mutate them.
type ProjectState struct {
	attributes          *ProjectAttributes
	compilationOptions  *CompilationOptions
	parseOptions        *ParseOptions
	documents           []*DocumentState
	additionalDocuments []*DocumentState
	projectReferences   []*ProjectReference
	metadataReferences  []*MetadataReference
	analyzerReferences  []*AnalyzerReference
}

// ProjectStateParts groups the constructor inputs of a ProjectState.
type ProjectStateParts struct {
	Attributes          *ProjectAttributes
	CompilationOptions  *CompilationOptions
	ParseOptions        *ParseOptions
	Documents           []*DocumentState
	AdditionalDocuments []*DocumentState
	ProjectReferences   []*ProjectReference
	MetadataReferences  []*MetadataReference
	AnalyzerReferences  []*AnalyzerReference
}

// NewProjectState builds a project from parts. Slices are copied.
func NewProjectState(parts ProjectStateParts) *ProjectState {
	if parts.Attributes == nil {
		panic("ir: NewProjectState requires attributes")
	}
	return &ProjectState{
		attributes:          parts.Attributes,
		compilationOptions:  parts.CompilationOptions,
		parseOptions:        parts.ParseOptions,
		documents:           slices.Clone(parts.Documents),
		additionalDocuments: slices.Clone(parts.AdditionalDocuments),
		projectReferences:   slices.Clone(parts.ProjectReferences),
		metadataReferences:  slices.Clone(parts.MetadataReferences),
		analyzerReferences:  slices.Clone(parts.AnalyzerReferences),
	}
}

// Parts returns a copy of the constructor inputs, for building a modified project.
func (p *ProjectState) Parts() ProjectStateParts {
	return ProjectStateParts{
		Attributes:          p.attributes,
		CompilationOptions:  p.compilationOptions,
		ParseOptions:        p.parseOptions,
		Documents:           slices.Clone(p.documents),
		AdditionalDocuments: slices.Clone(p.additionalDocuments),
		ProjectReferences:   slices.Clone(p.projectReferences),
		MetadataReferences:  slices.Clone(p.metadataReferences),
		AnalyzerReferences:  slices.Clone(p.analyzerReferences),
	}
}

func (p *ProjectState) ID() ProjectID                           { return p.attributes.ID }
func (p *ProjectState) Language() string                        { return p.attributes.Language }
func (p *ProjectState) Attributes() *ProjectAttributes          { return p.attributes }
func (p *ProjectState) CompilationOptions() *CompilationOptions { return p.compilationOptions }
func (p *ProjectState) ParseOptions() *ParseOptions             { return p.parseOptions }
func (p *ProjectState) Documents() []*DocumentState             { return p.documents }
func (p *ProjectState) AdditionalDocuments() []*DocumentState   { return p.additionalDocuments }
func (p *ProjectState) ProjectReferences() []*ProjectReference  { return p.projectReferences }
func (p *ProjectState) MetadataReferences() []*MetadataReference {
	return p.metadataReferences
}
func (p *ProjectState) AnalyzerReferences() []*AnalyzerReference {
	return p.analyzerReferences
}

// Document finds a regular or additional document by id.
func (p *ProjectState) Document(id DocumentID) (*DocumentState, bool) {
	for _, d := range p.documents {
		if d.ID() == id {
			return d, true
		}
	}
	for _, d := range p.additionalDocuments {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// WithDocument returns a new project in which the document with doc's id is
// replaced by doc. Regular documents are searched first, then additional
// documents; an unknown id is appended to the regular documents.
func (p *ProjectState) WithDocument(doc *DocumentState) *ProjectState {
	parts := p.Parts()
	if i := indexOfDocument(parts.Documents, doc.ID()); i >= 0 {
		parts.Documents[i] = doc
	} else if i := indexOfDocument(parts.AdditionalDocuments, doc.ID()); i >= 0 {
		parts.AdditionalDocuments[i] = doc
	} else {
		parts.Documents = append(parts.Documents, doc)
	}
	return NewProjectState(parts)
}

// WithCompilationOptions returns a new project with replaced compilation options.
func (p *ProjectState) WithCompilationOptions(opts *CompilationOptions) *ProjectState {
	parts := p.Parts()
	parts.CompilationOptions = opts
	return NewProjectState(parts)
}

func indexOfDocument(docs []*DocumentState, id DocumentID) int {
	return slices.IndexFunc(docs, func(d *DocumentState) bool { return d.ID() == id })
}

// SolutionState is one immutable solution snapshot.
// Projects are kept sorted by id.
type SolutionState struct {
	attributes         *SolutionAttributes
	projects           []*ProjectState
	analyzerReferences []*AnalyzerReference
	options            *OptionSet
}

// NewSolutionState builds a solution. The project slice is copied and sorted by id.
func NewSolutionState(attributes *SolutionAttributes, projects []*ProjectState, analyzerRefs []*AnalyzerReference, options *OptionSet) *SolutionState {
	if attributes == nil {
		panic("ir: NewSolutionState requires attributes")
	}
	sorted := slices.Clone(projects)
	slices.SortFunc(sorted, func(a, b *ProjectState) int {
		return compareStrings(string(a.ID()), string(b.ID()))
	})
	return &SolutionState{
		attributes:         attributes,
		projects:           sorted,
		analyzerReferences: slices.Clone(analyzerRefs),
		options:            options,
	}
}

func (s *SolutionState) ID() SolutionID                           { return s.attributes.ID }
func (s *SolutionState) Attributes() *SolutionAttributes          { return s.attributes }
func (s *SolutionState) Projects() []*ProjectState                { return s.projects }
func (s *SolutionState) AnalyzerReferences() []*AnalyzerReference { return s.analyzerReferences }
func (s *SolutionState) Options() *OptionSet                      { return s.options }

// Project finds a project by id.
func (s *SolutionState) Project(id ProjectID) (*ProjectState, bool) {
	for _, p := range s.projects {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// WithProject returns a new solution in which the project with p's id is
// replaced (or added).
func (s *SolutionState) WithProject(p *ProjectState) *SolutionState {
	projects := slices.Clone(s.projects)
	if i := slices.IndexFunc(projects, func(q *ProjectState) bool { return q.ID() == p.ID() }); i >= 0 {
		projects[i] = p
	} else {
		projects = append(projects, p)
	}
	return NewSolutionState(s.attributes, projects, s.analyzerReferences, s.options)
}

// WithoutProject returns a new solution without the given project.
func (s *SolutionState) WithoutProject(id ProjectID) *SolutionState {
	projects := slices.DeleteFunc(slices.Clone(s.projects), func(q *ProjectState) bool { return q.ID() == id })
	return NewSolutionState(s.attributes, projects, s.analyzerReferences, s.options)
}

// WithOptions returns a new solution with replaced options.
func (s *SolutionState) WithOptions(options *OptionSet) *SolutionState {
	return NewSolutionState(s.attributes, s.projects, s.analyzerReferences, options)
}

// WithDocumentText returns a new solution in which one document's text is
// replaced. Every other project and document keeps its identity.
func (s *SolutionState) WithDocumentText(id DocumentID, text *SourceText) (*SolutionState, error) {
	for _, p := range s.projects {
		if d, ok := p.Document(id); ok {
			return s.WithProject(p.WithDocument(d.WithText(text))), nil
		}
	}
	return nil, fmt.Errorf("document %s not found in solution %s", id, s.ID())
}

// DocumentCount returns the number of regular and additional documents.
func (s *SolutionState) DocumentCount() int {
	n := 0
	for _, p := range s.projects {
		n += len(p.documents) + len(p.additionalDocuments)
	}
	return n
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
