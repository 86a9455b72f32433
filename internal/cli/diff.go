package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/engine"
	"github.com/roach88/assetsync/internal/ir"
)

// Change statuses.
const (
	StatusAdded   = "added"
	StatusRemoved = "removed"
	StatusChanged = "changed"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Context int
}

// DiffResult is the output of the diff command.
type DiffResult struct {
	OldRoot  string        `json:"old_root"`
	NewRoot  string        `json:"new_root"`
	Same     bool          `json:"same"`
	Projects []ProjectDiff `json:"projects,omitempty"`
}

// ProjectDiff lists what changed in one project.
type ProjectDiff struct {
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Documents []DocumentDiff `json:"documents,omitempty"`
}

// DocumentDiff describes one changed document. Patch is empty when only
// attributes changed.
type DocumentDiff struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Patch  string `json:"patch,omitempty"`
}

func (r DiffResult) renderText(w io.Writer) {
	if r.Same {
		fmt.Fprintf(w, "identical %s\n", r.OldRoot)
		return
	}
	fmt.Fprintf(w, "old root %s\n", r.OldRoot)
	fmt.Fprintf(w, "new root %s\n", r.NewRoot)
	for _, p := range r.Projects {
		fmt.Fprintf(w, "%-8s project %s\n", p.Status, p.Name)
		for _, d := range p.Documents {
			fmt.Fprintf(w, "  %-8s %s\n", d.Status, d.Path)
			if d.Patch != "" {
				fmt.Fprint(w, d.Patch)
			}
		}
	}
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <old-manifest> <new-manifest>",
		Short: "Compare two solution manifests by checksum",
		Long: `Build both manifests in one engine and report which projects and
documents differ. Unchanged subtrees are recognized by checksum alone.
Changed document text is shown as a unified diff.

Exit code is 1 when the snapshots differ.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Context, "context", 3, "lines of context in text diffs")

	return cmd
}

func runDiff(ctx context.Context, opts *DiffOptions, oldPath, newPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	var states [2]*ir.SolutionState
	for i, path := range []string{oldPath, newPath} {
		m, err := LoadManifest(path)
		if err != nil {
			return failLoad(formatter, err)
		}
		if states[i], err = m.Solution(); err != nil {
			return failLoad(formatter, err)
		}
	}

	e := engine.New(engine.WithLogger(opts.logger(cmd.ErrOrStderr())))
	result, err := diffStates(ctx, e, states[0], states[1], opts.Context)
	if err != nil {
		_ = formatter.Error(ErrCodeBuildFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "diff failed", err)
	}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Same {
		return NewExitError(ExitFailure, "snapshots differ")
	}
	return nil
}

// diffStates builds both states and walks only the subtrees whose
// checksums differ.
func diffStates(ctx context.Context, e *engine.Engine, before, after *ir.SolutionState, lines int) (DiffResult, error) {
	oldH, oldRoot, err := e.BuildScope(ctx, before)
	if err != nil {
		return DiffResult{}, err
	}
	defer e.DisposeScope(oldH)
	newH, newRoot, err := e.BuildScope(ctx, after)
	if err != nil {
		return DiffResult{}, err
	}
	defer e.DisposeScope(newH)

	result := DiffResult{OldRoot: oldRoot.String(), NewRoot: newRoot.String(), Same: oldRoot == newRoot}
	if result.Same {
		return result, nil
	}

	oldProjects, err := projectChecksums(ctx, e, oldH, oldRoot, before)
	if err != nil {
		return DiffResult{}, err
	}
	newProjects, err := projectChecksums(ctx, e, newH, newRoot, after)
	if err != nil {
		return DiffResult{}, err
	}

	for _, p := range before.Projects() {
		if _, ok := after.Project(p.ID()); !ok {
			result.Projects = append(result.Projects, ProjectDiff{Name: p.Attributes().Name, Status: StatusRemoved})
		}
	}
	for _, p := range after.Projects() {
		old, ok := before.Project(p.ID())
		if !ok {
			result.Projects = append(result.Projects, ProjectDiff{Name: p.Attributes().Name, Status: StatusAdded})
			continue
		}
		if oldProjects[p.ID()] == newProjects[p.ID()] {
			continue
		}
		oldDocs, err := documentChecksums(ctx, e, oldH, oldProjects[p.ID()], old)
		if err != nil {
			return DiffResult{}, err
		}
		newDocs, err := documentChecksums(ctx, e, newH, newProjects[p.ID()], p)
		if err != nil {
			return DiffResult{}, err
		}
		result.Projects = append(result.Projects, ProjectDiff{
			Name:      p.Attributes().Name,
			Status:    StatusChanged,
			Documents: diffDocuments(old, p, oldDocs, newDocs, lines),
		})
	}
	slices.SortStableFunc(result.Projects, func(a, b ProjectDiff) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func diffDocuments(before, after *ir.ProjectState, oldSums, newSums map[ir.DocumentID]checksum.Checksum, lines int) []DocumentDiff {
	var out []DocumentDiff
	oldDocs := documentsByID(before)
	for _, d := range allDocuments(after) {
		old, ok := oldDocs[d.ID()]
		switch {
		case !ok:
			out = append(out, DocumentDiff{Path: d.Attributes().FilePath, Status: StatusAdded, Patch: unifiedDiff("/dev/null", d.Attributes().FilePath, "", d.Text().Content, lines)})
		case oldSums[d.ID()] != newSums[d.ID()]:
			out = append(out, DocumentDiff{
				Path:   d.Attributes().FilePath,
				Status: StatusChanged,
				Patch:  unifiedDiff(old.Attributes().FilePath, d.Attributes().FilePath, old.Text().Content, d.Text().Content, lines),
			})
		}
		delete(oldDocs, d.ID())
	}
	for _, d := range allDocuments(before) {
		if _, gone := oldDocs[d.ID()]; gone {
			out = append(out, DocumentDiff{Path: d.Attributes().FilePath, Status: StatusRemoved})
		}
	}
	slices.SortStableFunc(out, func(a, b DocumentDiff) int { return strings.Compare(a.Path, b.Path) })
	return out
}

func allDocuments(p *ir.ProjectState) []*ir.DocumentState {
	return append(slices.Clone(p.Documents()), p.AdditionalDocuments()...)
}

func documentsByID(p *ir.ProjectState) map[ir.DocumentID]*ir.DocumentState {
	out := make(map[ir.DocumentID]*ir.DocumentState)
	for _, d := range allDocuments(p) {
		out[d.ID()] = d
	}
	return out
}

// unifiedDiff returns a unified diff of two texts, or "" when equal.
func unifiedDiff(aName, bName, a, b string, lines int) string {
	if a == b {
		return ""
	}
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  lines,
	})
	if err != nil {
		return ""
	}
	return s
}
