package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/harness"
	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/store"
)

// FilterOptions holds flags for the filter command.
type FilterOptions struct {
	*RootOptions
	Model       string
	QueryFile   string
	RecordsFile string
	Database    string
	Driver      string
	Migrate     bool
	Repository  string
}

// FilterResult holds the records a query returned.
type FilterResult struct {
	Model      string           `json:"model"`
	Repository string           `json:"repository"`
	Count      int              `json:"count"`
	Records    []map[string]any `json:"records"`
}

type repository interface {
	query.Repository
	Insert(ctx context.Context, m *model.Model, records ...model.Record) error
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "filter <schema-dir>",
		Short: "Run a query against records or a database",
		Long: `Run a query and print the records it selects.

Without --db the records file is loaded into an in-memory repository and
the query is evaluated there. With --db the query is compiled and run
against the database; --records then inserts the file first.

Example:
  relq filter ./schema --model User --query adults.yaml --records users.yaml
  relq filter ./schema --model User --query adults.yaml --db ./blog.db
  relq filter ./schema --model User --query adults.yaml --db "dbname=blog sslmode=disable" --driver postgres`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "model to query (required)")
	cmd.Flags().StringVarP(&opts.QueryFile, "query", "q", "", "query options file (YAML)")
	cmd.Flags().StringVarP(&opts.RecordsFile, "records", "r", "", "records file (YAML list)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database path or connection string")
	cmd.Flags().StringVar(&opts.Driver, "driver", string(querysql.SQLite), "database driver (sqlite3|postgres)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "create missing tables before running")
	cmd.Flags().StringVar(&opts.Repository, "repository", model.DefaultRepository, "repository name used to resolve default orders")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runFilter(opts *FilterOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Database == "" && opts.RecordsFile == "" {
		return outputCommandError(formatter, ErrCodeRecordsFile, "one of --records or --db is required", nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := loadModels(formatter, schemaDir)
	if err != nil {
		return err
	}
	m, err := lookupModel(formatter, reg, opts.Model)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(ctx, formatter, opts, reg)
	if err != nil {
		return err
	}
	defer closeRepo()

	if opts.RecordsFile != "" {
		records, err := ReadRecordsFile(opts.RecordsFile)
		if err != nil {
			return outputCommandError(formatter, ErrCodeRecordsFile, err.Error(), nil)
		}
		if err := repo.Insert(ctx, m, records...); err != nil {
			return outputCommandError(formatter, ErrCodeRecordsFile, err.Error(), nil)
		}
		formatter.VerboseLog("Inserted %d %s record(s)", len(records), m.Name())
	}

	q, err := buildQuery(formatter, repo, m, opts.QueryFile)
	if err != nil {
		return err
	}

	records, err := q.Records(ctx)
	if err != nil {
		return outputCommandError(formatter, ErrCodeDatabase, fmt.Sprintf("read failed: %v", err), nil)
	}

	return outputFilterSuccess(formatter, q.Fields(), FilterResult{
		Model:      m.Name(),
		Repository: repo.Name(),
		Count:      len(records),
		Records:    harness.DumpRecords(q.Fields(), records),
	})
}

// openRepository returns the in-memory repository, or the database named by
// --db. The returned func releases it.
func openRepository(ctx context.Context, formatter *OutputFormatter, opts *FilterOptions, reg *model.Registry) (repository, func(), error) {
	if opts.Database == "" {
		return store.NewMemory(opts.Repository), func() {}, nil
	}

	dialect, err := querysql.ParseDialect(opts.Driver)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeUnknown, err.Error(), nil)
	}
	slog.Info("opening database", "driver", dialect)
	db, err := store.Open(opts.Repository, dialect, opts.Database)
	if err != nil {
		return nil, nil, outputCommandError(formatter, ErrCodeDatabase, err.Error(), nil)
	}
	closeDB := func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}

	if opts.Migrate {
		if err := db.Migrate(ctx, reg); err != nil {
			closeDB()
			return nil, nil, outputCommandError(formatter, ErrCodeDatabase, err.Error(), nil)
		}
	}
	return db, closeDB, nil
}

// outputFilterSuccess prints records one per line in field order.
func outputFilterSuccess(formatter *OutputFormatter, fields []*model.Property, result FilterResult) error {
	if formatter.Format == "json" {
		return formatter.encodeJSON(CLIResponse{Status: "ok", Data: result})
	}

	for _, rec := range result.Records {
		parts := make([]string, len(fields))
		for i, p := range fields {
			parts[i] = fmt.Sprintf("%s=%v", p.Name(), formatValue(rec[p.Name()]))
		}
		fmt.Fprintln(formatter.Writer, strings.Join(parts, " "))
	}
	fmt.Fprintf(formatter.Writer, "%d record(s)\n", result.Count)
	return nil
}

func formatValue(v any) any {
	if v == nil {
		return "nil"
	}
	if s, ok := v.(string); ok && strings.ContainsAny(s, " \t") {
		return fmt.Sprintf("%q", s)
	}
	return v
}
