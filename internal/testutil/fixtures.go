// Package testutil provides fixtures shared by package tests: small
// solutions with stable ids, a version clock, and a serializer whose
// codecs count their invocations.
package testutil

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/assetsync/internal/ir"
)

// ProjectSpec describes one fixture project.
type ProjectSpec struct {
	Name      string
	Language  string
	Documents map[string]string // path -> content
}

// Solution builds a solution with stable, name-derived ids. Documents are
// added in sorted path order.
func Solution(name string, projects ...ProjectSpec) *ir.SolutionState {
	sid := ir.SolutionIDFromName(name)
	states := make([]*ir.ProjectState, 0, len(projects))
	for _, p := range projects {
		states = append(states, Project(sid, p))
	}
	return ir.NewSolutionState(
		&ir.SolutionAttributes{ID: sid, FilePath: "/src/" + name + ".sln"},
		states, nil, nil,
	)
}

// Project builds one fixture project inside solution sid.
func Project(sid ir.SolutionID, spec ProjectSpec) *ir.ProjectState {
	pid := ir.ProjectIDFromName(sid, spec.Name)
	lang := spec.Language
	if lang == "" {
		lang = "C#"
	}
	docs := make([]*ir.DocumentState, 0, len(spec.Documents))
	for _, path := range sortedKeys(spec.Documents) {
		docs = append(docs, Document(pid, path, spec.Documents[path]))
	}
	return ir.NewProjectState(ir.ProjectStateParts{
		Attributes: &ir.ProjectAttributes{
			ID:           pid,
			Name:         spec.Name,
			AssemblyName: spec.Name,
			Language:     lang,
			FilePath:     fmt.Sprintf("/src/%s/%s.proj", spec.Name, spec.Name),
		},
		CompilationOptions: &ir.CompilationOptions{Language: lang, Payload: []byte(`{"optimize":false}`)},
		ParseOptions:       &ir.ParseOptions{Language: lang, LanguageVersion: "latest"},
		Documents:          docs,
	})
}

// Document builds one fixture document.
func Document(pid ir.ProjectID, path, content string) *ir.DocumentState {
	return ir.NewDocumentState(
		&ir.DocumentAttributes{
			ID:       ir.DocumentIDFromPath(pid, path),
			Name:     baseName(path),
			FilePath: path,
		},
		ir.NewSourceText(content),
	)
}

// TwoProjectSolution is a solution with projects "Core" and "App", one
// document each.
func TwoProjectSolution() *ir.SolutionState {
	return Solution("Sample",
		ProjectSpec{Name: "Core", Documents: map[string]string{"/src/Core/Lib.cs": "class Lib {}"}},
		ProjectSpec{Name: "App", Documents: map[string]string{"/src/App/Program.cs": "class Program {}"}},
	)
}

// MixedLanguageSolution has one project in each of the given languages,
// named after the language, each with one document.
func MixedLanguageSolution(languages ...string) *ir.SolutionState {
	specs := make([]ProjectSpec, len(languages))
	for i, lang := range languages {
		specs[i] = ProjectSpec{
			Name:      "Proj" + fmt.Sprint(i),
			Language:  lang,
			Documents: map[string]string{fmt.Sprintf("/src/p%d/main.txt", i): "content in " + lang},
		}
	}
	return Solution("Mixed", specs...)
}

// FirstDocument returns the id of the first document of the first project.
func FirstDocument(s *ir.SolutionState) ir.DocumentID {
	return s.Projects()[0].Documents()[0].ID()
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
