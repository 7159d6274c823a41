package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
)

// Memory is a repository holding records in process.
//
// Tables are keyed by storage name, so a model shares its table with its
// descendants. Memory is safe for concurrent use.
type Memory struct {
	name string

	mu     sync.RWMutex
	tables map[string][]model.Attributes
}

// NewMemory returns an empty repository named name.
func NewMemory(name string) *Memory {
	return &Memory{
		name:   name,
		tables: make(map[string][]model.Attributes),
	}
}

// Name implements query.Repository.
func (m *Memory) Name() string { return m.name }

// Insert stores records of mdl with every property typecast. Missing
// properties are stored as nil.
func (m *Memory) Insert(_ context.Context, mdl *model.Model, records ...model.Record) error {
	rows := make([]model.Attributes, 0, len(records))
	for _, rec := range records {
		row := make(model.Attributes)
		for _, p := range mdl.Properties() {
			v, _ := p.Get(rec)
			cast, err := p.Typecast(v)
			if err != nil {
				return fmt.Errorf("insert %s: %w", mdl, err)
			}
			row[p.Name()] = cast
		}
		rows = append(rows, row)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	name := mdl.StorageName()
	m.tables[name] = append(m.tables[name], rows...)
	return nil
}

// Len returns the number of records stored for mdl's table.
func (m *Memory) Len(mdl *model.Model) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[mdl.StorageName()])
}

// Read implements query.Repository.
func (m *Memory) Read(ctx context.Context, q *query.Query) ([]model.Record, error) {
	if !q.Valid() {
		slog.Debug("invalid query short-circuited", "repository", m.name, "query", q.String())
		return []model.Record{}, nil
	}

	m.mu.RLock()
	rows := m.attach(m.tables[q.Model().StorageName()], q.Model(), q.Links())
	m.mu.RUnlock()

	matched, err := q.FilterRecordsContext(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", q.Model(), err)
	}

	out := make([]model.Record, len(matched))
	for i, rec := range matched {
		out[i] = project(rec, q.Fields())
	}
	slog.Debug("query executed", "repository", m.name, "model", q.Model().Name(), "records", len(out))
	return out, nil
}

// attach copies rows of from and nests, under each link's name, the
// related rows the link reaches: one record (or nil) for many to one, a
// list for one to many. Links starting at a linked model are attached to
// the nested rows.
func (m *Memory) attach(rows []model.Attributes, from *model.Model, links []*model.Relationship) []model.Record {
	out := make([]model.Record, len(rows))
	for i, row := range rows {
		out[i] = m.attachRow(row, from, links)
	}
	return out
}

func (m *Memory) attachRow(row model.Attributes, from *model.Model, links []*model.Relationship) model.Attributes {
	cp := make(model.Attributes, len(row)+len(links))
	for k, v := range row {
		cp[k] = v
	}
	for i, link := range links {
		if !from.Descends(link.Source()) {
			continue
		}
		rest := append(append([]*model.Relationship(nil), links[:i]...), links[i+1:]...)
		related := m.related(row, link)
		if link.Cardinality() == model.ManyToOne {
			if len(related) == 0 {
				cp[link.Name()] = nil
			} else {
				cp[link.Name()] = m.attachRow(related[0], link.Target(), rest)
			}
			continue
		}
		list := make([]model.Record, len(related))
		for j, r := range related {
			list[j] = m.attachRow(r, link.Target(), rest)
		}
		cp[link.Name()] = list
	}
	return cp
}

func (m *Memory) related(row model.Attributes, link *model.Relationship) []model.Attributes {
	src, ok := link.SourceValues(row)
	if !ok {
		return nil
	}
	want := fmt.Sprint(src)
	var out []model.Attributes
	for _, candidate := range m.tables[link.Target().StorageName()] {
		tgt, ok := link.TargetValues(candidate)
		if ok && fmt.Sprint(tgt) == want {
			out = append(out, candidate)
		}
	}
	return out
}

// project keeps only the selected fields, as a SQL select list would.
func project(rec model.Record, fields []*model.Property) model.Attributes {
	out := make(model.Attributes, len(fields))
	for _, p := range fields {
		v, _ := p.Get(rec)
		out[p.Name()] = v
	}
	return out
}
