package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querysql"
)

// SQL is a repository backed by a SQL database.
type SQL struct {
	name     string
	db       *sqlx.DB
	compiler *querysql.Compiler
}

// Open connects to a database and returns a repository named name.
//
// For SQLite, dsn is a file path or a go-sqlite3 DSN; the pool is limited
// to a single connection and foreign keys are enforced. For PostgreSQL, dsn
// is a lib/pq connection string.
func Open(name string, dialect querysql.Dialect, dsn string) (*SQL, error) {
	driver := SQLiteDriver
	if dialect == querysql.Postgres {
		driver = "postgres"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == querysql.SQLite {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return &SQL{name: name, db: db, compiler: querysql.NewCompiler(dialect)}, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection pool.
func (s *SQL) DB() *sqlx.DB {
	return s.db
}

// Name implements query.Repository.
func (s *SQL) Name() string { return s.name }

// Dialect returns the SQL dialect queries are compiled for.
func (s *SQL) Dialect() querysql.Dialect { return s.compiler.Dialect() }

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Migrate creates a table for every storage name in reg. It is idempotent.
func (s *SQL) Migrate(ctx context.Context, reg *model.Registry) error {
	for _, t := range tables(reg) {
		stmt := t.createStatement(s.Dialect())
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		slog.Debug("table created", "table", t.name, "columns", len(t.columns))
	}
	return nil
}

// Insert writes records of m. Attributes are typecast and dumped per
// property; attributes that are not properties of m are ignored.
func (s *SQL) Insert(ctx context.Context, m *model.Model, records ...model.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		var cols, marks []string
		var args []any
		for _, p := range m.Properties() {
			v, ok := p.Get(rec)
			if !ok {
				continue
			}
			cast, err := p.Typecast(v)
			if err != nil {
				return fmt.Errorf("insert %s: %w", m, err)
			}
			cols = append(cols, quote(p.Field()))
			marks = append(marks, "?")
			args = append(args, p.Dump(cast))
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(m.StorageName()), strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), args...); err != nil {
			return fmt.Errorf("insert %s: %w", m, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Read implements query.Repository. Each row becomes a model.Attributes
// keyed by property name with typecast values.
func (s *SQL) Read(ctx context.Context, q *query.Query) ([]model.Record, error) {
	if !q.Valid() {
		slog.Debug("invalid query short-circuited", "repository", s.name, "query", q.String())
		return []model.Record{}, nil
	}

	stmt, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	slog.Debug("query compiled", "repository", s.name, "sql", stmt, "params", len(params))

	rows, err := s.db.QueryxContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Model(), err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Model(), err)
		}
		rec, err := loadRow(q.Model(), row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Model(), err)
	}

	slog.Debug("query executed", "repository", s.name, "model", q.Model().Name(), "records", len(records))
	return records, nil
}

func loadRow(m *model.Model, row map[string]any) (model.Attributes, error) {
	rec := make(model.Attributes, len(row))
	for col, v := range row {
		p, ok := m.Property(col)
		if !ok {
			rec[col] = v
			continue
		}
		cast, err := p.Typecast(v)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", m, err)
		}
		rec[p.Name()] = cast
	}
	return rec, nil
}
