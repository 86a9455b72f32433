package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// response decodes the JSON envelope with a typed payload.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var r response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &r), "output: %s", out)
	return r
}

func TestBuildCommand_Text(t *testing.T) {
	out, err := execute(t, "build", writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "projects  2")
	assert.Contains(t, out, "documents 2")
	assert.Contains(t, out, "root      ")
}

func TestBuildCommand_JSONAcrossFormats(t *testing.T) {
	yamlOut, err := execute(t, "--format", "json", "build", writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)
	cueOut, err := execute(t, "--format", "json", "build", writeManifest(t, "solution.cue", sampleCUE))
	require.NoError(t, err)

	y := decode[BuildResult](t, yamlOut)
	c := decode[BuildResult](t, cueOut)
	assert.Equal(t, "ok", y.Status)
	assert.Equal(t, 2, y.Data.Projects)
	assert.Equal(t, 2, y.Data.Documents)
	assert.NotEmpty(t, y.Data.Root)
	assert.Equal(t, y.Data.Root, c.Data.Root)
	assert.Empty(t, y.Data.Tree)
}

func TestBuildCommand_Tree(t *testing.T) {
	out, err := execute(t, "--format", "json", "build", "--tree", writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)

	r := decode[BuildResult](t, out)
	require.NotEmpty(t, r.Data.Tree)
	assert.Equal(t, 0, r.Data.Tree[0].Depth)
	assert.Equal(t, r.Data.Root, r.Data.Tree[0].Checksum)
	for _, l := range r.Data.Tree[1:] {
		assert.Positive(t, l.Depth)
	}
}

func TestBuildCommand_MissingManifest(t *testing.T) {
	out, err := execute(t, "--format", "json", "build", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	r := decode[json.RawMessage](t, out)
	assert.Equal(t, "error", r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrCodeNotFound, r.Error.Code)
}

func TestSyncCommand_SecondRunTransfersNothing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "replica.db")
	manifest := writeManifest(t, "solution.yaml", sampleYAML)

	out, err := execute(t, "--format", "json", "sync", "--db", db, manifest)
	require.NoError(t, err)
	first := decode[SyncResult](t, out).Data
	assert.Positive(t, first.Requested)
	assert.Equal(t, first.Requested, first.Fetched)
	assert.Equal(t, first.Requested, first.Stored)
	assert.Equal(t, 2, first.Projects)
	assert.Equal(t, 2, first.Documents)
	assert.NotEmpty(t, first.Session)

	out, err = execute(t, "--format", "json", "sync", "--db", db, manifest)
	require.NoError(t, err)
	second := decode[SyncResult](t, out).Data
	assert.Equal(t, first.Root, second.Root)
	assert.Zero(t, second.Requested)
	assert.Zero(t, second.Stored)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 2, second.Documents)
	assert.NotEqual(t, first.Session, second.Session)
}

func TestSyncCommand_EditTransfersLess(t *testing.T) {
	db := filepath.Join(t.TempDir(), "replica.db")

	out, err := execute(t, "--format", "json", "sync", "--db", db, writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)
	first := decode[SyncResult](t, out).Data

	out, err = execute(t, "--format", "json", "sync", "--db", db, writeManifest(t, "solution.yaml", editedYAML))
	require.NoError(t, err)
	second := decode[SyncResult](t, out).Data
	assert.NotEqual(t, first.Root, second.Root)
	assert.Positive(t, second.Skipped)
	assert.Equal(t, 3, second.Projects)
	assert.Equal(t, 3, second.Documents)
}

func TestSyncCommand_BlobStorage(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--format", "json", "sync",
		"--db", filepath.Join(dir, "replica.db"),
		"--blob-dir", filepath.Join(dir, "blobs"),
		"--inline-threshold", "8",
		"--languages", "C#",
		writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)

	r := decode[SyncResult](t, out).Data
	assert.Equal(t, 2, r.Projects)
	assert.Equal(t, 2, r.Documents)
}

func TestSyncCommand_TextOutput(t *testing.T) {
	out, err := execute(t, "sync", "--db", filepath.Join(t.TempDir(), "replica.db"), writeManifest(t, "solution.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "replica   2 project(s), 2 document(s)")
}

func TestDiffCommand_Identical(t *testing.T) {
	out, err := execute(t, "diff",
		writeManifest(t, "solution.yaml", sampleYAML),
		writeManifest(t, "solution.json", sampleJSON))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "identical "))
}

func TestDiffCommand_Changed(t *testing.T) {
	out, err := execute(t, "--format", "json", "diff",
		writeManifest(t, "solution.yaml", sampleYAML),
		writeManifest(t, "edited.yaml", editedYAML))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	r := decode[DiffResult](t, out).Data
	assert.False(t, r.Same)
	assert.NotEqual(t, r.OldRoot, r.NewRoot)
	require.Len(t, r.Projects, 2)

	core := r.Projects[0]
	assert.Equal(t, "Core", core.Name)
	assert.Equal(t, StatusChanged, core.Status)
	require.Len(t, core.Documents, 1)
	assert.Equal(t, "/src/Core/Lib.cs", core.Documents[0].Path)
	assert.Equal(t, StatusChanged, core.Documents[0].Status)
	assert.Contains(t, core.Documents[0].Patch, "+  int x;")

	assert.Equal(t, ProjectDiff{Name: "Tools", Status: StatusAdded}, r.Projects[1])
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode int
		want     ValidationResult
	}{
		{
			name:    "valid",
			content: sampleYAML,
			want:    ValidationResult{Valid: true, Solution: "Sample", Projects: 2, Documents: 2},
		},
		{
			name:     "schema violation",
			content:  "name: x\nprojects:\n  - language: C#\n",
			wantCode: ExitFailure,
			want:     ValidationResult{Code: ErrCodeSchema},
		},
		{
			name:     "unknown reference",
			content:  "name: x\nprojects:\n  - name: p\n    project_references:\n      - project: q\n",
			wantCode: ExitFailure,
			want:     ValidationResult{Code: ErrCodeInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "--format", "json", "validate", writeManifest(t, "solution.yaml", tt.content))
			assert.Equal(t, tt.wantCode, GetExitCode(err))

			got := decode[ValidationResult](t, out).Data
			if !tt.want.Valid {
				assert.NotEmpty(t, got.Errors)
				got.Errors = nil
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
