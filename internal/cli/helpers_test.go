package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `name: Sample
file_path: /src/Sample.sln
options:
  indent: 4
  style: tabs
projects:
  - name: Core
    compilation_options:
      optimize: false
    parse_options:
      language_version: latest
    documents:
      - path: /src/Core/Lib.cs
        content: "class Lib {}"
  - name: App
    compilation_options:
      optimize: false
    parse_options:
      language_version: latest
    project_references:
      - project: Core
    documents:
      - path: /src/App/Program.cs
        content: "class Program {}"
`

const sampleJSON = `{
  "projects": [
    {
      "name": "Core",
      "parse_options": {"language_version": "latest"},
      "compilation_options": {"optimize": false},
      "documents": [{"path": "/src/Core/Lib.cs", "content": "class Lib {}"}]
    },
    {
      "name": "App",
      "compilation_options": {"optimize": false},
      "parse_options": {"language_version": "latest"},
      "project_references": [{"project": "Core"}],
      "documents": [{"content": "class Program {}", "path": "/src/App/Program.cs"}]
    }
  ],
  "options": {"style": "tabs", "indent": 4},
  "file_path": "/src/Sample.sln",
  "name": "Sample"
}`

const sampleCUE = `name:      "Sample"
file_path: "/src/Sample.sln"
options: {
	indent: 4
	style:  "tabs"
}
projects: [{
	name: "Core"
	compilation_options: optimize: false
	parse_options: language_version: "latest"
	documents: [{path: "/src/Core/Lib.cs", content: "class Lib {}"}]
}, {
	name: "App"
	compilation_options: optimize: false
	parse_options: language_version: "latest"
	project_references: [{project: "Core"}]
	documents: [{path: "/src/App/Program.cs", content: "class Program {}"}]
}]
`

// editedYAML changes Core's document and adds a project.
const editedYAML = `name: Sample
file_path: /src/Sample.sln
options:
  indent: 4
  style: tabs
projects:
  - name: Core
    compilation_options:
      optimize: false
    parse_options:
      language_version: latest
    documents:
      - path: /src/Core/Lib.cs
        content: "class Lib {\n  int x;\n}\n"
  - name: App
    compilation_options:
      optimize: false
    parse_options:
      language_version: latest
    project_references:
      - project: Core
    documents:
      - path: /src/App/Program.cs
        content: "class Program {}"
  - name: Tools
    language: F#
    documents:
      - path: /src/Tools/Tool.fs
        content: "let x = 1"
`

// writeManifest writes content to name inside a fresh temp dir.
func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
