package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/store"
)

// RepositoryName is the name shared by every scenario repository, so
// models' default orders resolve the same way in each.
const RepositoryName = model.DefaultRepository

// Harness runs scenarios against an in-memory repository and an in-memory
// SQLite database loaded with the same records.
type Harness struct {
	registry *model.Registry
	repos    []repository
	compiler *querysql.Compiler
	logger   *slog.Logger
}

type repository struct {
	name string
	repo query.Repository
	sql  bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh repositories. Execution flow:
//  1. Compile the schema into a model registry
//  2. Migrate an in-memory SQLite database and load both repositories
//  3. Build each step's query and read it from every repository
//  4. Check expectations and that the repositories agree
//
// The returned error reports setup failures; failed expectations are
// recorded on the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		compiler: querysql.NewCompiler(querysql.SQLite),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	reg, err := loadRegistry(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	h.registry = reg

	sqlite, err := store.Open(RepositoryName, querysql.SQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer sqlite.Close()
	if err := sqlite.Migrate(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	memory := store.NewMemory(RepositoryName)

	h.repos = []repository{
		{name: "memory", repo: memory},
		{name: "sqlite", repo: sqlite, sql: true},
	}

	if err := h.load(ctx, scenario.Records, memory, sqlite); err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	h.logger.Info("scenario started", "scenario", scenario.Name, "queries", len(scenario.Queries))

	result := NewResult()
	for _, step := range scenario.Queries {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors),
	)
	return result, nil
}

func loadRegistry(s *Scenario) (*model.Registry, error) {
	if s.Schema != "" {
		loaded, err := schema.Load(s.Schema)
		if err != nil {
			return nil, err
		}
		return loaded.Registry, nil
	}
	return schema.LoadString(s.Name+".cue", s.Models)
}

type inserter interface {
	Insert(ctx context.Context, m *model.Model, records ...model.Record) error
}

// load inserts records in registry order, so targets of foreign keys are
// present before the records that reference them.
func (h *Harness) load(ctx context.Context, records map[string][]map[string]any, targets ...inserter) error {
	for name := range records {
		if _, ok := h.registry.Get(name); !ok {
			return fmt.Errorf("records for unknown model %q", name)
		}
	}
	for _, m := range h.registry.Models() {
		rows := records[m.Name()]
		if len(rows) == 0 {
			continue
		}
		recs := make([]model.Record, len(rows))
		for i, row := range rows {
			recs[i] = model.Attributes(row)
		}
		for _, t := range targets {
			if err := t.Insert(ctx, m, recs...); err != nil {
				return err
			}
		}
		h.logger.Debug("records loaded", "model", m.Name(), "count", len(recs))
	}
	return nil
}

// executeStep runs one step against every repository.
func (h *Harness) executeStep(ctx context.Context, step QueryStep, result *Result) error {
	m, ok := h.registry.Get(step.Model)
	if !ok {
		result.AddError(fmt.Sprintf("step %s: unknown model %q", step.Name, step.Model))
		return nil
	}

	var outs []Output
	for _, r := range h.repos {
		out := Output{Step: step.Name, Repository: r.name, Records: []map[string]any{}}

		q, err := h.buildQuery(r.repo, m, step)
		if err != nil {
			code, ok := query.ErrorCodeOf(err)
			if !ok {
				return err
			}
			out.Error = string(code)
			h.logger.Info("query rejected", "step", step.Name, "repository", r.name, "code", code)
		} else {
			out.Query = q.String()
			if r.sql {
				stmt, _, err := h.compiler.Compile(q)
				if err != nil {
					result.AddError(fmt.Sprintf("step %s: compile: %v", step.Name, err))
				}
				out.SQL = stmt
			}

			records, err := r.repo.Read(ctx, q)
			if err != nil {
				result.AddError(fmt.Sprintf("step %s (%s): read: %v", step.Name, r.name, err))
			} else {
				out.Records = DumpRecords(q.Fields(), records)
			}
			h.logger.Info("query executed", "step", step.Name, "repository", r.name, "records", len(out.Records))
		}

		for _, msg := range EvaluateExpect(m, step, out, r.sql) {
			result.AddError(msg)
		}
		result.AddOutput(out)
		outs = append(outs, out)
	}

	if err := assertParity(step.Name, outs); err != nil {
		result.AddError(err.Error())
	}
	return nil
}

// buildQuery normalizes the step's options and applies its combination,
// slice and reversal, in that order.
func (h *Harness) buildQuery(repo query.Repository, m *model.Model, step QueryStep) (*query.Query, error) {
	opts, err := query.ParseOptions(step.Options)
	if err != nil {
		return nil, err
	}
	q, err := query.New(repo, m, opts)
	if err != nil {
		return nil, err
	}

	if c := step.Combine; c != nil {
		otherOpts, err := query.ParseOptions(c.Options)
		if err != nil {
			return nil, err
		}
		if c.Op == OpMerge {
			if q, err = q.Merge(otherOpts); err != nil {
				return nil, err
			}
		} else {
			other, err := query.New(repo, m, otherOpts)
			if err != nil {
				return nil, err
			}
			switch c.Op {
			case OpUnion:
				q, err = q.Union(other)
			case OpIntersection:
				q, err = q.Intersection(other)
			case OpDifference:
				q, err = q.Difference(other)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if step.Slice != nil {
		if q, err = q.Slice(step.Slice[0], step.Slice[1]); err != nil {
			return nil, err
		}
	}
	if step.Reverse {
		q = q.Reverse()
	}
	return q, nil
}

// DumpRecords reduces records to canonical values keyed by property name.
func DumpRecords(fields []*model.Property, records []model.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(fields))
		for _, p := range fields {
			v, _ := p.Get(rec)
			row[p.Name()] = p.Dump(v)
		}
		out[i] = row
	}
	return out
}
