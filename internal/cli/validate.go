package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/harness"
)

// ValidationError is one invalid scenario file.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Check scenario files without running them",
		Long: `Check scenario files against the scenario schema and reference rules
without running them. Directories are expanded to their .yaml files.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := expandScenarioPaths(paths)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), err)
	}
	if len(files) == 0 {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "no scenario files found", nil)
	}
	f.VerboseLog("Validating %d scenario file(s)", len(files))

	result := ValidationResult{Files: len(files)}
	for _, file := range files {
		if _, err := harness.LoadScenario(file); err != nil {
			result.Errors = append(result.Errors, ValidationError{File: file, Message: err.Error()})
		}
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		if err := f.Error(ErrCodeSchema, fmt.Sprintf("%d invalid scenario file(s)", len(result.Errors)), result.Errors); err != nil {
			return err
		}
		if f.Format != "json" {
			for _, e := range result.Errors {
				fmt.Fprintf(f.Writer, "  %s: %s\n", e.File, e.Message)
			}
		}
		return &ExitError{Code: ExitFailure, Message: "validation failed", reported: true}
	}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d scenario file(s) valid\n", result.Files)
	})
}

func expandScenarioPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := findScenarioFiles(p, "")
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}
