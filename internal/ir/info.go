package ir

// DocumentInfo is a reconstructed document.
type DocumentInfo struct {
	Attributes DocumentAttributes `json:"attributes"`
	Text       *SourceText        `json:"text,omitempty"`
}

// ProjectInfo is a reconstructed project.
type ProjectInfo struct {
	Attributes          ProjectAttributes   `json:"attributes"`
	CompilationOptions  *CompilationOptions `json:"compilation_options,omitempty"`
	ParseOptions        *ParseOptions       `json:"parse_options,omitempty"`
	Documents           []DocumentInfo      `json:"documents"`
	ProjectReferences   []ProjectReference  `json:"project_references,omitempty"`
	MetadataReferences  []MetadataReference `json:"metadata_references,omitempty"`
	AnalyzerReferences  []AnalyzerReference `json:"analyzer_references,omitempty"`
	AdditionalDocuments []DocumentInfo      `json:"additional_documents,omitempty"`
}

// SolutionInfo is a reconstructed solution.
type SolutionInfo struct {
	Attributes         SolutionAttributes  `json:"attributes"`
	Projects           []ProjectInfo       `json:"projects"`
	AnalyzerReferences []AnalyzerReference `json:"analyzer_references,omitempty"`
	Options            *OptionSet          `json:"options,omitempty"`
}

// Project finds a reconstructed project by id.
func (s *SolutionInfo) Project(id ProjectID) (*ProjectInfo, bool) {
	for i := range s.Projects {
		if s.Projects[i].Attributes.ID == id {
			return &s.Projects[i], true
		}
	}
	return nil, false
}

// DocumentCount returns the number of reconstructed regular and additional documents.
func (s *SolutionInfo) DocumentCount() int {
	n := 0
	for _, p := range s.Projects {
		n += len(p.Documents) + len(p.AdditionalDocuments)
	}
	return n
}
