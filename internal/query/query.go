package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
)

// Repository executes queries. The name identifies the data source: queries
// over different repositories never combine.
type Repository interface {
	Name() string
	Read(ctx context.Context, q *Query) ([]model.Record, error)
}

// Query is a normalized, validated request for records of one model.
//
// A Query is owned by a single writer. Update and ReverseInPlace and
// SliceInPlace mutate; every other method returns a fresh Query whose
// condition tree shares nothing with the receiver.
type Query struct {
	repository  Repository
	model       *model.Model
	fields      []*model.Property
	links       []*model.Relationship
	conditions  *conditions.Operation
	offset      int
	limit       int
	bounded     bool
	order       []Direction
	unique      bool
	uniqueSet   bool
	addReversed bool
	reload      bool
}

// Repository returns the repository the query reads from.
func (q *Query) Repository() Repository { return q.repository }

// Model returns the queried model.
func (q *Query) Model() *model.Model { return q.model }

// Fields returns the selected properties.
func (q *Query) Fields() []*model.Property { return slices.Clone(q.fields) }

// Links returns the relationships joined by the query.
func (q *Query) Links() []*model.Relationship { return slices.Clone(q.links) }

// Conditions returns the root of the condition tree. It is always an and
// operation. Callers must not modify it.
func (q *Query) Conditions() *conditions.Operation { return q.conditions }

// Offset returns the number of records skipped.
func (q *Query) Offset() int { return q.offset }

// Limit returns the maximum number of records and whether one is set.
func (q *Query) Limit() (int, bool) { return q.limit, q.bounded }

// Order returns the sort directions.
func (q *Query) Order() []Direction { return slices.Clone(q.order) }

// Unique reports whether duplicate rows are removed.
func (q *Query) Unique() bool { return q.unique }

// AddReversed reports whether records are returned in reverse order.
func (q *Query) AddReversed() bool { return q.addReversed }

// Reload reports whether already loaded records are refreshed.
func (q *Query) Reload() bool { return q.reload }

// Paginated reports whether the query carries a limit or a non-zero offset.
func (q *Query) Paginated() bool { return q.bounded || q.offset > 0 }

// Valid reports whether the query can match any record. Repositories
// skip invalid queries without I/O.
func (q *Query) Valid() bool {
	return conditions.Minimize(q.conditions).Valid()
}

// Records reads the query's records from its repository.
func (q *Query) Records(ctx context.Context) ([]model.Record, error) {
	return q.repository.Read(ctx, q)
}

// Options returns the normalized options. New(q.Repository(), q.Model(),
// q.Options()) builds a query equal to q.
func (q *Query) Options() Options {
	opts := Options{
		KeyFields:      slices.Clone(q.fields),
		KeyConditions:  conditions.Clone(q.conditions),
		KeyOffset:      q.offset,
		KeyOrder:       slices.Clone(q.order),
		KeyAddReversed: q.addReversed,
		KeyReload:      q.reload,
	}
	if len(q.links) > 0 {
		opts[KeyLinks] = slices.Clone(q.links)
	}
	if q.bounded {
		opts[KeyLimit] = q.limit
	}
	if q.uniqueSet {
		opts[KeyUnique] = q.unique
	}
	return opts
}

// Copy returns a deep copy of q.
func (q *Query) Copy() *Query {
	cp := *q
	cp.fields = slices.Clone(q.fields)
	cp.links = slices.Clone(q.links)
	cp.order = slices.Clone(q.order)
	cp.conditions = conditions.Clone(q.conditions).(*conditions.Operation)
	return &cp
}

// Equal reports whether q and other request the same records the same way.
func (q *Query) Equal(other *Query) bool {
	if q == nil || other == nil {
		return q == other
	}
	return q.Key() == other.Key()
}

// Key is the structural identity of q.
func (q *Query) Key() string {
	fields := make([]any, len(q.fields))
	for i, p := range q.fields {
		fields[i] = p.String()
	}
	links := make([]any, len(q.links))
	for i, r := range q.links {
		links[i] = r.String()
	}
	order := make([]any, len(q.order))
	for i, d := range q.order {
		dir := "asc"
		if d.Descending {
			dir = "desc"
		}
		order[i] = d.Property.String() + " " + dir
	}
	var limit any
	if q.bounded {
		limit = q.limit
	}
	return canon.MustHash(canon.DomainQuery, map[string]any{
		"repository":   q.repository.Name(),
		"model":        q.model.Name(),
		"fields":       fields,
		"links":        links,
		"conditions":   q.conditions.Key(),
		"offset":       q.offset,
		"limit":        limit,
		"order":        order,
		"unique":       q.unique,
		"add_reversed": q.addReversed,
		"reload":       q.reload,
	})
}

// String renders q for debugging.
func (q *Query) String() string {
	names := func(n int, name func(int) string) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = name(i)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	limit := "nil"
	if q.bounded {
		limit = fmt.Sprint(q.limit)
	}
	return fmt.Sprintf("query(repository=%s model=%s fields=%s links=%s conditions=(%s) order=%s offset=%d limit=%s unique=%t add_reversed=%t reload=%t)",
		q.repository.Name(),
		q.model.Name(),
		names(len(q.fields), func(i int) string { return q.fields[i].Name() }),
		names(len(q.links), func(i int) string { return q.links[i].Name() }),
		conditions.Minimize(q.conditions),
		names(len(q.order), func(i int) string { return q.order[i].String() }),
		q.offset,
		limit,
		q.unique,
		q.addReversed,
		q.reload,
	)
}
