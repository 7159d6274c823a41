package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/schema"
)

// Error codes for CLI input files. Model loading codes come from schema.
const (
	ErrCodeQueryFile   = "E201" // Query options file unreadable or malformed
	ErrCodeRecordsFile = "E202" // Records file unreadable or malformed
	ErrCodeUnknown     = "E203" // Unknown model or dialect
	ErrCodeDatabase    = "E204" // Database open or read failed
)

// loadModels loads the schema directory and reports a load failure through
// formatter. The returned error is always an *ExitError.
func loadModels(formatter *OutputFormatter, dir string) (*model.Registry, error) {
	loaded, err := schema.Load(dir)
	if err != nil {
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) {
			return nil, outputCommandError(formatter, loadErr.Code, loadErr.Error(), nil)
		}
		return nil, outputCommandError(formatter, schema.ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Loaded %d model(s) from %d CUE file(s) in %s", loaded.Registry.Len(), loaded.FileCount, dir)
	return loaded.Registry, nil
}

// lookupModel resolves the --model flag.
func lookupModel(formatter *OutputFormatter, reg *model.Registry, name string) (*model.Model, error) {
	m, ok := reg.Get(name)
	if !ok {
		return nil, outputCommandError(formatter, ErrCodeUnknown, fmt.Sprintf("unknown model %q", name), nil)
	}
	return m, nil
}

// ReadOptionsFile decodes a YAML mapping of finder options. An empty path
// or empty file yields no options.
func ReadOptionsFile(path string) (query.Options, error) {
	if path == "" {
		return query.Options{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	raw := map[string]any{}
	if err := decodeYAML(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse query file %s: %w", path, err)
	}
	return query.ParseOptions(raw)
}

// ReadRecordsFile decodes a YAML list of records.
func ReadRecordsFile(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	var rows []map[string]any
	if err := decodeYAML(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse records file %s: %w", path, err)
	}
	records := make([]model.Record, len(rows))
	for i, row := range rows {
		records[i] = model.Attributes(row)
	}
	return records, nil
}

func decodeYAML(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return yaml.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// buildQuery reads the query file and normalizes it for repo. Failures are
// reported through formatter.
func buildQuery(formatter *OutputFormatter, repo query.Repository, m *model.Model, path string) (*query.Query, error) {
	opts, err := ReadOptionsFile(path)
	if err != nil {
		if code, ok := query.ErrorCodeOf(err); ok {
			return nil, outputCommandError(formatter, string(code), err.Error(), nil)
		}
		return nil, outputCommandError(formatter, ErrCodeQueryFile, err.Error(), nil)
	}
	formatter.VerboseLog("Options: %s", query.FormatOptions(opts))

	q, err := query.New(repo, m, opts)
	if err != nil {
		code, ok := query.ErrorCodeOf(err)
		if !ok {
			code = query.ErrorCode(schema.ErrCodeGeneric)
		}
		var details any
		var qe *query.Error
		if errors.As(err, &qe) && qe.Option != "" {
			details = map[string]string{"option": qe.Option}
		}
		return nil, outputCommandError(formatter, string(code), err.Error(), details)
	}
	formatter.VerboseLog("Query: %s", q)
	return q, nil
}

// outputCommandError reports a command-level failure (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
