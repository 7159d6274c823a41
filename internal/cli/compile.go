package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Model      string
	QueryFile  string
	Dialect    string
	Repository string
}

// CompilationResult is the compiled statement for one query.
type CompilationResult struct {
	Model  string `json:"model"`
	Query  string `json:"query"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema-dir>",
		Short: "Compile a query to SQL",
		Long: `Normalize a query options file against a model and print the SQL it
compiles to, with its bound parameters.

The query file is a YAML mapping of finder options:

  age.gte: 21
  author.name: Dan
  order: [name.desc]
  limit: 10

Example:
  relq compile ./schema --model User --query adults.yaml
  relq compile ./schema --model User --query adults.yaml --dialect postgres`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "model to query (required)")
	cmd.Flags().StringVarP(&opts.QueryFile, "query", "q", "", "query options file (YAML)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(querysql.SQLite), "SQL dialect (sqlite3|postgres)")
	cmd.Flags().StringVar(&opts.Repository, "repository", model.DefaultRepository, "repository name used to resolve default orders")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runCompile(opts *CompileOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	dialect, err := querysql.ParseDialect(opts.Dialect)
	if err != nil {
		return outputCommandError(formatter, ErrCodeUnknown, err.Error(), nil)
	}

	reg, err := loadModels(formatter, schemaDir)
	if err != nil {
		return err
	}
	m, err := lookupModel(formatter, reg, opts.Model)
	if err != nil {
		return err
	}

	// The query is only compiled, so an empty repository carries its name.
	q, err := buildQuery(formatter, store.NewMemory(opts.Repository), m, opts.QueryFile)
	if err != nil {
		return err
	}

	stmt, params, err := querysql.NewCompiler(dialect).Compile(q)
	if err != nil {
		return outputCommandError(formatter, schema.ErrCodeGeneric, fmt.Sprintf("compile failed: %v", err), nil)
	}

	return outputCompileSuccess(formatter, CompilationResult{
		Model:  m.Name(),
		Query:  q.String(),
		SQL:    stmt,
		Params: params,
	})
}

// outputCompileSuccess outputs the compiled statement.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult) error {
	if result.Params == nil {
		result.Params = []any{}
	}
	if formatter.Format == "json" {
		return formatter.encodeJSON(CLIResponse{Status: "ok", Data: result})
	}

	fmt.Fprintln(formatter.Writer, result.SQL)
	if len(result.Params) > 0 {
		fmt.Fprintf(formatter.Writer, "-- params: %v\n", result.Params)
	}
	return nil
}
