package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Solution  string   `json:"solution,omitempty"`
	Projects  int      `json:"projects,omitempty"`
	Documents int      `json:"documents,omitempty"`
	Code      string   `json:"code,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %s: %d project(s), %d document(s)\n", r.Solution, r.Projects, r.Documents)
		return
	}
	fmt.Fprintf(w, "✗ invalid manifest [%s]\n", r.Code)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a solution manifest without building it",
		Long: `Check a YAML, JSON or CUE manifest against the manifest schema and
resolve its project references and document files. No checksums are computed.

Exit code is 1 when the manifest is invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result := validateFile(path)
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "manifest is invalid")
	}
	return nil
}

func validateFile(path string) ValidationResult {
	m, err := LoadManifest(path)
	if err == nil {
		s, solErr := m.Solution()
		if solErr == nil {
			return ValidationResult{
				Valid:     true,
				Solution:  m.Name,
				Projects:  len(s.Projects()),
				Documents: s.DocumentCount(),
			}
		}
		err = solErr
	}

	result := ValidationResult{Code: loadErrorCode(err)}
	if le, ok := err.(*LoadError); ok && len(le.Violations) > 0 {
		result.Errors = le.Violations
	} else {
		result.Errors = []string{err.Error()}
	}
	return result
}
