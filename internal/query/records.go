package query

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
)

// FilterRecords applies the whole query to an in-memory record set:
// match, deduplicate when unique, sort, then apply offset and limit.
// The input slice is never modified.
func (q *Query) FilterRecords(records []model.Record) ([]model.Record, error) {
	return q.FilterRecordsContext(context.Background(), records)
}

// FilterRecordsContext is FilterRecords with a context for loading
// subqueries.
func (q *Query) FilterRecordsContext(ctx context.Context, records []model.Record) ([]model.Record, error) {
	out, err := q.MatchRecordsContext(ctx, records)
	if err != nil {
		return nil, err
	}
	if q.unique {
		out = q.uniqueRecords(out)
	}
	out, err = q.SortRecords(out)
	if err != nil {
		return nil, err
	}
	return q.LimitRecords(out), nil
}

// MatchRecords returns the records satisfying the query's conditions, in
// input order.
func (q *Query) MatchRecords(records []model.Record) ([]model.Record, error) {
	return q.MatchRecordsContext(context.Background(), records)
}

// MatchRecordsContext is MatchRecords with a context for loading subqueries.
func (q *Query) MatchRecordsContext(ctx context.Context, records []model.Record) ([]model.Record, error) {
	tree, err := conditions.Resolve(ctx, q.conditions)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		ok, err := tree.Match(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SortRecords returns the records stably sorted by the query's order.
// nil sorts first ascending. add_reversed flips every direction.
func (q *Query) SortRecords(records []model.Record) ([]model.Record, error) {
	out := slices.Clone(records)
	if len(q.order) == 0 {
		return out, nil
	}
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, err := q.compareRecords(out[i], out[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

func (q *Query) compareRecords(a, b model.Record) (int, error) {
	for _, d := range q.order {
		va, err := sortValue(d.Property, a)
		if err != nil {
			return 0, err
		}
		vb, err := sortValue(d.Property, b)
		if err != nil {
			return 0, err
		}
		c, err := conditions.Compare(va, vb)
		if err != nil {
			return 0, fmt.Errorf("sort by %s: %w", d.Property, err)
		}
		if d.Descending != q.addReversed {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

func sortValue(p *model.Property, rec model.Record) (any, error) {
	v, _ := p.Get(rec)
	return p.Typecast(v)
}

// LimitRecords returns the records inside the query's offset and limit.
func (q *Query) LimitRecords(records []model.Record) []model.Record {
	start := min(q.offset, len(records))
	end := len(records)
	if q.bounded {
		end = min(start+q.limit, end)
	}
	return slices.Clone(records[start:end])
}

// uniqueRecords drops records whose model key was already seen. Records
// without a complete key are kept.
func (q *Query) uniqueRecords(records []model.Record) []model.Record {
	seen := make(map[string]bool, len(records))
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		key, ok := q.model.KeyOf(rec)
		if ok {
			k := conditions.CanonicalString(key)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, rec)
	}
	return out
}
