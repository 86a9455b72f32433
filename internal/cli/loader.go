package cli

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/roach88/assetsync/internal/ir"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var manifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(manifestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
})

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E002" // Manifest path not found
	ErrCodeParseFailed  = "E003" // YAML/JSON/CUE parse failed
	ErrCodeUnsupported  = "E004" // Unknown manifest extension
	ErrCodeSchema       = "E005" // Manifest violates the schema
	ErrCodeInvalid      = "E006" // Manifest is well-formed but inconsistent
	ErrCodeBuildFailed  = "E007" // Checksum tree build failed
	ErrCodeStoreFailed  = "E008" // Local store could not be opened or written
	ErrCodeSyncFailed   = "E009" // Replica sync failed
	ErrCodeDocumentRead = "E010" // Document file unreadable
)

// LoadError represents an error that occurred while loading a manifest.
type LoadError struct {
	Code       string
	Message    string
	Violations []string // schema violations, for ErrCodeSchema
	Err        error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadErrorCode returns the code of a LoadError, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

// Manifest describes a solution snapshot on disk. Ids are derived from
// names and paths, so the same manifest always yields the same ids.
type Manifest struct {
	Name               string                 `json:"name"`
	FilePath           string                 `json:"file_path,omitempty"`
	Options            ir.MapValue            `json:"options,omitempty"`
	AnalyzerReferences []ir.AnalyzerReference `json:"analyzer_references,omitempty"`
	Projects           []ProjectManifest      `json:"projects"`

	dir string
}

// ProjectManifest describes one project.
type ProjectManifest struct {
	Name                string                 `json:"name"`
	Language            string                 `json:"language,omitempty"`
	AssemblyName        string                 `json:"assembly_name,omitempty"`
	FilePath            string                 `json:"file_path,omitempty"`
	OutputFilePath      string                 `json:"output_file_path,omitempty"`
	DefaultNamespace    string                 `json:"default_namespace,omitempty"`
	CompilationOptions  json.RawMessage        `json:"compilation_options,omitempty"`
	ParseOptions        *ParseOptionsManifest  `json:"parse_options,omitempty"`
	Documents           []DocumentManifest     `json:"documents,omitempty"`
	AdditionalDocuments []DocumentManifest     `json:"additional_documents,omitempty"`
	ProjectReferences   []ReferenceManifest    `json:"project_references,omitempty"`
	MetadataReferences  []ir.MetadataReference `json:"metadata_references,omitempty"`
	AnalyzerReferences  []ir.AnalyzerReference `json:"analyzer_references,omitempty"`
}

// ParseOptionsManifest holds parse settings; the language comes from the
// project.
type ParseOptionsManifest struct {
	LanguageVersion     string            `json:"language_version,omitempty"`
	PreprocessorSymbols []string          `json:"preprocessor_symbols,omitempty"`
	Features            map[string]string `json:"features,omitempty"`
	DocumentationMode   int32             `json:"documentation_mode,omitempty"`
}

// DocumentManifest describes a document. Text comes from Content, or from
// File read relative to the manifest.
type DocumentManifest struct {
	Path        string   `json:"path"`
	Content     string   `json:"content,omitempty"`
	File        string   `json:"file,omitempty"`
	Encoding    string   `json:"encoding,omitempty"`
	Folders     []string `json:"folders,omitempty"`
	SourceKind  string   `json:"source_kind,omitempty"`
	IsGenerated bool     `json:"is_generated,omitempty"`
}

// ReferenceManifest links to another project of the manifest by name.
type ReferenceManifest struct {
	Project           string   `json:"project"`
	Aliases           []string `json:"aliases,omitempty"`
	EmbedInteropTypes bool     `json:"embed_interop_types,omitempty"`
}

// LoadManifest reads a YAML, JSON or CUE manifest, validates it against the
// manifest schema and decodes it.
func LoadManifest(path string) (*Manifest, error) {
	data, err := manifestJSON(path)
	if err != nil {
		return nil, err
	}
	if violations, err := validateManifest(data); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "manifest schema unavailable", Err: err}
	} else if len(violations) > 0 {
		return nil, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("%s does not match the manifest schema", path), Violations: violations}
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("decoding %s", path), Err: err}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// manifestJSON reads path and converts it to JSON according to its
// extension.
func manifestJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s", path), Err: err}
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
		var v any
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("%s is empty", path)}
			}
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML %s", path), Err: err}
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("converting YAML %s", path), Err: err}
		}
		return out, nil
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("building CUE value %s", path), Err: err}
		}
		out, err := v.MarshalJSON()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("exporting CUE %s", path), Err: err}
		}
		return out, nil
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q (want .yaml, .yml, .json or .cue)", ext)}
	}
}

// validateManifest returns the schema violations of data, sorted.
func validateManifest(data []byte) ([]string, error) {
	schema, err := manifestSchema()
	if err != nil {
		return nil, err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil, nil
	}
	var violations []string
	collectViolations(result, &violations)
	slices.Sort(violations)
	return slices.Compact(violations), nil
}

func collectViolations(r *jsonschema.EvaluationResult, out *[]string) {
	for keyword, e := range r.Errors {
		loc := r.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s: %v", loc, keyword, e))
	}
	for _, d := range r.Details {
		collectViolations(d, out)
	}
}

// Solution converts the manifest to an immutable solution state.
func (m *Manifest) Solution() (*ir.SolutionState, error) {
	sid := ir.SolutionIDFromName(m.Name)

	byName := make(map[string]ir.ProjectID, len(m.Projects))
	for _, p := range m.Projects {
		if _, dup := byName[p.Name]; dup {
			return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("duplicate project name %q", p.Name)}
		}
		byName[p.Name] = ir.ProjectIDFromName(sid, p.Name)
	}

	projects := make([]*ir.ProjectState, 0, len(m.Projects))
	for _, p := range m.Projects {
		ps, err := m.project(p, byName)
		if err != nil {
			return nil, err
		}
		projects = append(projects, ps)
	}

	var options *ir.OptionSet
	if m.Options != nil {
		options = &ir.OptionSet{Values: m.Options}
	}
	return ir.NewSolutionState(
		&ir.SolutionAttributes{ID: sid, FilePath: m.FilePath},
		projects,
		pointers(m.AnalyzerReferences),
		options,
	), nil
}

func (m *Manifest) project(p ProjectManifest, byName map[string]ir.ProjectID) (*ir.ProjectState, error) {
	pid := byName[p.Name]
	lang := p.Language
	if lang == "" {
		lang = "C#"
	}
	assembly := p.AssemblyName
	if assembly == "" {
		assembly = p.Name
	}

	var comp *ir.CompilationOptions
	if len(p.CompilationOptions) > 0 {
		comp = &ir.CompilationOptions{Language: lang, Payload: p.CompilationOptions}
	}
	parse := &ir.ParseOptions{Language: lang}
	if po := p.ParseOptions; po != nil {
		parse.LanguageVersion = po.LanguageVersion
		parse.PreprocessorSymbols = po.PreprocessorSymbols
		parse.Features = po.Features
		parse.DocumentationMode = po.DocumentationMode
	}

	refs := make([]*ir.ProjectReference, 0, len(p.ProjectReferences))
	for _, r := range p.ProjectReferences {
		target, ok := byName[r.Project]
		if !ok {
			return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("project %q references unknown project %q", p.Name, r.Project)}
		}
		refs = append(refs, &ir.ProjectReference{ProjectID: target, Aliases: r.Aliases, EmbedInteropTypes: r.EmbedInteropTypes})
	}

	docs, err := m.documents(pid, p.Documents)
	if err != nil {
		return nil, err
	}
	additional, err := m.documents(pid, p.AdditionalDocuments)
	if err != nil {
		return nil, err
	}

	return ir.NewProjectState(ir.ProjectStateParts{
		Attributes: &ir.ProjectAttributes{
			ID:               pid,
			Name:             p.Name,
			AssemblyName:     assembly,
			Language:         lang,
			FilePath:         p.FilePath,
			OutputFilePath:   p.OutputFilePath,
			DefaultNamespace: p.DefaultNamespace,
		},
		CompilationOptions:  comp,
		ParseOptions:        parse,
		Documents:           docs,
		AdditionalDocuments: additional,
		ProjectReferences:   refs,
		MetadataReferences:  pointers(p.MetadataReferences),
		AnalyzerReferences:  pointers(p.AnalyzerReferences),
	}), nil
}

func (m *Manifest) documents(pid ir.ProjectID, docs []DocumentManifest) ([]*ir.DocumentState, error) {
	out := make([]*ir.DocumentState, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.Path] {
			return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("duplicate document path %q", d.Path)}
		}
		seen[d.Path] = true

		content := d.Content
		if d.File != "" {
			file := d.File
			if !filepath.IsAbs(file) {
				file = filepath.Join(m.dir, file)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeDocumentRead, Message: fmt.Sprintf("reading document %s", d.Path), Err: err}
			}
			content = string(data)
		}
		text := ir.NewSourceText(content)
		if d.Encoding != "" {
			text.Encoding = d.Encoding
		}

		kind := ir.SourceKindRegular
		if d.SourceKind == "script" {
			kind = ir.SourceKindScript
		}
		out = append(out, ir.NewDocumentState(&ir.DocumentAttributes{
			ID:          ir.DocumentIDFromPath(pid, d.Path),
			Name:        filepath.Base(d.Path),
			Folders:     d.Folders,
			FilePath:    d.Path,
			SourceKind:  kind,
			IsGenerated: d.IsGenerated,
		}, text))
	}
	return out, nil
}

func pointers[T any](values []T) []*T {
	if len(values) == 0 {
		return nil
	}
	out := make([]*T, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}
