package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Models []ModelSummary    `json:"models,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one problem found in the model definitions.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ModelSummary describes a loaded model.
type ModelSummary struct {
	Name          string   `json:"name"`
	Storage       string   `json:"storage"`
	Parent        string   `json:"parent,omitempty"`
	Key           []string `json:"key"`
	Properties    []string `json:"properties"`
	Relationships []string `json:"relationships,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate model definitions",
		Long: `Validate the CUE model definitions in a directory.

Checks property types, keys, relationship targets and foreign keys,
inheritance and default orders, and lists the models found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loaded, err := schema.Load(schemaDir)
	if err != nil {
		var loadErr *schema.LoadError
		if !errors.As(err, &loadErr) {
			return outputCommandError(formatter, schema.ErrCodeGeneric, err.Error(), nil)
		}
		if !isDefinitionError(loadErr.Code) {
			// Missing directories and unreadable files are command errors.
			return outputCommandError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		verr := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			verr.File = loadErr.Pos.Filename()
			verr.Line = loadErr.Pos.Line()
		}
		return outputValidationErrors(formatter, []ValidationError{verr})
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, schemaDir)

	models := summarize(loaded.Registry)
	for _, m := range models {
		formatter.VerboseLog("Validated model: %s (%s)", m.Name, m.Storage)
	}
	return outputValidateSuccess(formatter, models)
}

// isDefinitionError reports whether code describes a mistake in the model
// definitions rather than in locating them.
func isDefinitionError(code string) bool {
	switch code {
	case schema.ErrCodeBuildFailed, schema.ErrCodeNoModels:
		return true
	}
	return len(code) == 4 && code[:2] == "E1"
}

func summarize(reg *model.Registry) []ModelSummary {
	models := make([]ModelSummary, 0, reg.Len())
	for _, m := range reg.Models() {
		s := ModelSummary{Name: m.Name(), Storage: m.StorageName()}
		if p := m.Parent(); p != nil {
			s.Parent = p.Name()
		}
		for _, p := range m.Key() {
			s.Key = append(s.Key, p.Name())
		}
		for _, p := range m.Properties() {
			s.Properties = append(s.Properties, p.Name())
		}
		for _, r := range m.Relationships() {
			s.Relationships = append(s.Relationships, r.Name())
		}
		models = append(models, s)
	}
	return models
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, models []ModelSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: models})
	}

	fmt.Fprintf(formatter.Writer, "✓ All models valid (%d model(s))\n", len(models))
	for _, m := range models {
		fmt.Fprintf(formatter.Writer, "  %s -> %s\n", m.Name, m.Storage)
	}
	return nil
}

// outputValidationErrors outputs validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encodeJSON(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
