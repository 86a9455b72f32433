package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/engine"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Tree bool
}

// BuildResult is the output of the build command.
type BuildResult struct {
	Solution  string     `json:"solution"`
	Root      string     `json:"root"`
	Projects  int        `json:"projects"`
	Documents int        `json:"documents"`
	Tree      []TreeLine `json:"tree,omitempty"`
}

func (r BuildResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "solution  %s\n", r.Solution)
	fmt.Fprintf(w, "root      %s\n", r.Root)
	fmt.Fprintf(w, "projects  %d\n", r.Projects)
	fmt.Fprintf(w, "documents %d\n", r.Documents)
	if len(r.Tree) > 0 {
		fmt.Fprintln(w)
		for _, l := range r.Tree {
			fmt.Fprintln(w, l)
		}
	}
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <manifest>",
		Short: "Compute the checksum tree of a solution manifest",
		Long: `Load a solution manifest (YAML, JSON or CUE), build its checksum tree
and print the root checksum. With --tree every node is listed.

Example:
  assetsync build solution.yaml
  assetsync build solution.cue --tree --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "list every node of the tree")

	return cmd
}

func runBuild(ctx context.Context, opts *BuildOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	m, err := LoadManifest(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	s, err := m.Solution()
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded %s: %d project(s), %d document(s)", path, len(s.Projects()), s.DocumentCount())

	e := engine.New(engine.WithLogger(opts.logger(cmd.ErrOrStderr())))
	h, root, err := e.BuildScope(ctx, s)
	if err != nil {
		_ = formatter.Error(ErrCodeBuildFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "build failed", err)
	}
	defer e.DisposeScope(h)

	result := BuildResult{
		Solution:  string(s.ID()),
		Root:      root.String(),
		Projects:  len(s.Projects()),
		Documents: s.DocumentCount(),
	}
	if opts.Tree {
		if result.Tree, err = dumpTree(ctx, e, h, root); err != nil {
			_ = formatter.Error(ErrCodeBuildFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "tree dump failed", err)
		}
	}
	return formatter.Success(result)
}

// failLoad reports a manifest load error and returns the matching exit error.
func failLoad(formatter *OutputFormatter, err error) error {
	var details any
	if le, ok := err.(*LoadError); ok && len(le.Violations) > 0 {
		details = le.Violations
	}
	_ = formatter.Error(loadErrorCode(err), err.Error(), details)
	return WrapExitError(ExitCommandError, "failed to load manifest", err)
}
