package ir

import (
	"maps"
	"slices"
)

// SourceKind distinguishes regular source files from scripts.
type SourceKind int32

const (
	SourceKindRegular SourceKind = 0
	SourceKindScript  SourceKind = 1
)

// SolutionAttributes is the leaf payload describing a solution.
type SolutionAttributes struct {
	ID       SolutionID   `json:"id"`
	Version  VersionStamp `json:"version"`
	FilePath string       `json:"file_path,omitempty"`
}

// ProjectAttributes is the leaf payload describing a project.
type ProjectAttributes struct {
	ID               ProjectID    `json:"id"`
	Version          VersionStamp `json:"version"`
	Name             string       `json:"name"`
	AssemblyName     string       `json:"assembly_name"`
	Language         string       `json:"language"`
	FilePath         string       `json:"file_path,omitempty"`
	OutputFilePath   string       `json:"output_file_path,omitempty"`
	DefaultNamespace string       `json:"default_namespace,omitempty"`
	IsSubmission     bool         `json:"is_submission,omitempty"`
}

// DocumentAttributes is the leaf payload describing a document.
type DocumentAttributes struct {
	ID          DocumentID   `json:"id"`
	Version     VersionStamp `json:"version"`
	Name        string       `json:"name"`
	Folders     []string     `json:"folders,omitempty"`
	FilePath    string       `json:"file_path,omitempty"`
	SourceKind  SourceKind   `json:"source_kind"`
	IsGenerated bool         `json:"is_generated,omitempty"`
}

// SourceText is document content plus the name of its original encoding.
type SourceText struct {
	Encoding string `json:"encoding"`
	Content  string `json:"content"`

	// Unavailable is set on the consumer side when the backing storage for a
	// large text could not be read. Content is empty in that case.
	Unavailable bool `json:"unavailable,omitempty"`
}

// IsUnavailable reports whether the content could not be loaded.
func (t *SourceText) IsUnavailable() bool { return t.Unavailable }

// NewSourceText builds UTF-8 source text.
func NewSourceText(content string) *SourceText {
	return &SourceText{Encoding: "utf-8", Content: content}
}

// CompilationOptions carries a compiler-specific options payload.
// Payload is opaque JSON; it is canonicalized before hashing so that
// logically equal payloads produce equal checksums.
type CompilationOptions struct {
	Language string `json:"language"`
	Payload  []byte `json:"payload"`
}

// ParseOptions carries language parse settings.
// Features is a dictionary; it is serialized sorted by key.
type ParseOptions struct {
	Language            string            `json:"language"`
	LanguageVersion     string            `json:"language_version,omitempty"`
	PreprocessorSymbols []string          `json:"preprocessor_symbols,omitempty"`
	Features            map[string]string `json:"features,omitempty"`
	DocumentationMode   int32             `json:"documentation_mode,omitempty"`
}

// SortedFeatureKeys returns the Features keys in byte order.
func (p *ParseOptions) SortedFeatureKeys() []string {
	return slices.Sorted(maps.Keys(p.Features))
}

// ProjectReference links a project to another project in the same solution.
type ProjectReference struct {
	ProjectID         ProjectID `json:"project_id"`
	Aliases           []string  `json:"aliases,omitempty"`
	EmbedInteropTypes bool      `json:"embed_interop_types,omitempty"`
}

// MetadataReference points at a compiled library on disk.
type MetadataReference struct {
	FilePath          string   `json:"file_path"`
	Aliases           []string `json:"aliases,omitempty"`
	EmbedInteropTypes bool     `json:"embed_interop_types,omitempty"`
}

// AnalyzerReference points at an analyzer assembly on disk.
type AnalyzerReference struct {
	FullPath string `json:"full_path"`
	Display  string `json:"display,omitempty"`
}

// OptionSet is a host-defined set of option values.
// Values are IR values (no floats) and are hashed as canonical JSON.
type OptionSet struct {
	Values MapValue `json:"values"`
}
