package ir

import (
	"github.com/google/uuid"
)

// SolutionID opaquely identifies a solution.
type SolutionID string

// ProjectID opaquely identifies a project.
type ProjectID string

// DocumentID opaquely identifies a document.
type DocumentID string

// VersionStamp is a logical version counter.
// It is NOT part of any checksum and is re-synthesized on reconstruction.
type VersionStamp int64

// idNamespace is the UUIDv5 namespace for name-derived ids.
var idNamespace = uuid.MustParse("6f1c7a2e-4b9d-5e8f-a0c3-2d7b1e9f4a60")

// NewSolutionID returns a fresh time-sortable UUIDv7 id.
func NewSolutionID() SolutionID {
	return SolutionID(uuid.Must(uuid.NewV7()).String())
}

// NewProjectID returns a fresh time-sortable UUIDv7 id.
func NewProjectID() ProjectID {
	return ProjectID(uuid.Must(uuid.NewV7()).String())
}

// NewDocumentID returns a fresh time-sortable UUIDv7 id.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.Must(uuid.NewV7()).String())
}

// SolutionIDFromName derives a stable id from a solution name.
// The same name always yields the same id, which keeps checksums of
// manifests without explicit ids stable across runs.
func SolutionIDFromName(name string) SolutionID {
	return SolutionID(uuid.NewSHA1(idNamespace, []byte("solution/"+name)).String())
}

// ProjectIDFromName derives a stable project id scoped to its solution.
func ProjectIDFromName(solution SolutionID, name string) ProjectID {
	return ProjectID(uuid.NewSHA1(idNamespace, []byte("project/"+string(solution)+"/"+name)).String())
}

// DocumentIDFromPath derives a stable document id scoped to its project.
func DocumentIDFromPath(project ProjectID, path string) DocumentID {
	return DocumentID(uuid.NewSHA1(idNamespace, []byte("document/"+string(project)+"/"+path)).String())
}
