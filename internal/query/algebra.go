package query

import (
	"fmt"

	"github.com/roach88/relq/internal/conditions"
)

// Update merges other into q in place. other is a *Query over the same
// repository and model, or Options. Recognized options replace q's; the
// conditions of both are combined with and.
func (q *Query) Update(other any) error {
	var opts Options
	switch o := other.(type) {
	case *Query:
		if err := q.compatible(o); err != nil {
			return err
		}
		opts = o.Options()
	case Options:
		opts = o
	case map[string]any:
		opts = make(Options, len(o))
		for k, v := range o {
			opts[k] = v
		}
	default:
		return optionError("update", "cannot update a query with %T", other)
	}

	merged := q.Options()
	extra := Options{}
	for k, v := range opts {
		name, recognized := isOptionKey(k)
		switch {
		case !recognized:
			extra[k] = v
		case name != KeyConditions:
			merged[name] = v
		}
	}

	fresh, err := New(q.repository, q.model, merged)
	if err != nil {
		return err
	}
	n := &normalizer{q: fresh}
	if v, ok := opts[KeyConditions]; ok {
		if err := n.conditions(v); err != nil {
			return err
		}
	}
	for _, k := range conditionKeys(extra) {
		if err := n.condition(k, extra[k]); err != nil {
			return err
		}
	}
	if !fresh.uniqueSet {
		fresh.unique = len(fresh.links) > 0
	}

	*q = *fresh
	return nil
}

// Merge is Update on a copy.
func (q *Query) Merge(other any) (*Query, error) {
	cp := q.Copy()
	if err := cp.Update(other); err != nil {
		return nil, err
	}
	return cp, nil
}

// Relative merges opts like Merge, except that offset and limit are taken
// relative to q's current window instead of replacing it.
func (q *Query) Relative(opts Options) (*Query, error) {
	rest := opts.Clone()
	offsetValue, hasOffset := rest[KeyOffset]
	limitValue, hasLimit := rest[KeyLimit]
	delete(rest, KeyOffset)
	delete(rest, KeyLimit)

	out, err := q.Merge(rest)
	if err != nil {
		return nil, err
	}
	if !hasOffset && !hasLimit {
		return out, nil
	}

	offset, length := 0, -1
	if hasOffset {
		v, ok := intValue(offsetValue)
		if !ok || v < 0 {
			return nil, optionError(KeyOffset, "offset must be a non-negative integer, got %#v", offsetValue)
		}
		offset = v
	}
	if hasLimit && limitValue != nil {
		v, ok := intValue(limitValue)
		if !ok || v < 0 {
			return nil, optionError(KeyLimit, "limit must be a non-negative integer, got %#v", limitValue)
		}
		length = v
	}
	if err := out.window(offset, length); err != nil {
		return nil, err
	}
	return out, nil
}

// Reverse returns a copy of q with every order direction flipped.
func (q *Query) Reverse() *Query {
	cp := q.Copy()
	cp.ReverseInPlace()
	return cp
}

// ReverseInPlace flips every order direction of q.
func (q *Query) ReverseInPlace() {
	for i, d := range q.order {
		q.order[i] = d.Reverse()
	}
}

// Slice returns a copy of q narrowed to length records starting at offset,
// both relative to q's current window.
func (q *Query) Slice(offset, length int) (*Query, error) {
	cp := q.Copy()
	if err := cp.SliceInPlace(offset, length); err != nil {
		return nil, err
	}
	return cp, nil
}

// SliceInPlace narrows q to length records starting at offset.
func (q *Query) SliceInPlace(offset, length int) error {
	if offset < 0 {
		return optionError(KeyOffset, "slice offset must be non-negative, got %d", offset)
	}
	if length < 0 {
		return optionError(KeyLimit, "slice length must be non-negative, got %d", length)
	}
	return q.window(offset, length)
}

// Index returns a copy of q narrowed to the single record at i.
func (q *Query) Index(i int) (*Query, error) {
	return q.Slice(i, 1)
}

// SliceRange returns a copy of q narrowed to the records first through
// last inclusive.
func (q *Query) SliceRange(first, last int) (*Query, error) {
	if last < first-1 {
		return nil, optionError("range", "range %d..%d is reversed", first, last)
	}
	return q.Slice(first, last-first+1)
}

// window moves q's offset and limit to a sub-window. A negative length
// takes the rest of the current window. A bounded query cannot be widened:
// the sub-window must be non-empty and end within the current one.
func (q *Query) window(offset, length int) error {
	first := q.offset + offset
	if length < 0 && q.bounded {
		length = q.limit - offset
	}
	if length == 0 || (length < 0 && q.bounded) ||
		(q.bounded && first+length > q.offset+q.limit) {
		return &Error{
			Code:   ErrCodeOutOfRange,
			Option: "slice",
			Message: fmt.Sprintf("offset %d and limit %d are outside the range of offset %d and limit %d",
				first, length, q.offset, q.limit),
		}
	}
	q.offset = first
	if length > 0 {
		q.limit, q.bounded = length, true
	}
	if q.offset > 0 && !q.bounded {
		return optionError(KeyOffset, "offset %d requires a limit", q.offset)
	}
	return nil
}

// Union returns a query matching records matched by q or other.
func (q *Query) Union(other *Query) (*Query, error) {
	return q.combine(other, conditions.Or)
}

// Intersection returns a query matching records matched by both q and other.
func (q *Query) Intersection(other *Query) (*Query, error) {
	return q.combine(other, conditions.And)
}

// Difference returns a query matching records matched by q but not other.
func (q *Query) Difference(other *Query) (*Query, error) {
	return q.combine(other, conditions.Not)
}

// combine builds the set operation named by slug (not meaning difference).
// The result takes fields, order and flags from other; only conditions
// are combined.
func (q *Query) combine(other *Query, slug conditions.Slug) (*Query, error) {
	if err := q.compatible(other); err != nil {
		return nil, err
	}
	left, err := q.operand()
	if err != nil {
		return nil, err
	}
	right, err := other.operand()
	if err != nil {
		return nil, err
	}

	var tree conditions.Node
	switch slug {
	case conditions.Or:
		tree = conditions.NewOr(left, right)
	case conditions.And:
		tree = conditions.NewAnd(left, right)
	default:
		tree = conditions.NewAnd(left, conditions.NewNot(right))
	}

	return New(q.repository, q.model, Options{
		KeyFields:      fieldList(other),
		KeyOrder:       other.Order(),
		KeyUnique:      other.unique,
		KeyAddReversed: other.addReversed,
		KeyReload:      other.reload,
		KeyConditions:  conditions.Minimize(tree),
	})
}

// operand returns q's conditions as one side of a set operation. Queries
// with a limit, an offset or links cannot be inlined: joins and pagination
// change which rows count. They become "self IN (q restricted to the key)".
func (q *Query) operand() (conditions.Node, error) {
	if !q.Paginated() && len(q.links) == 0 {
		return conditions.Clone(q.conditions), nil
	}
	key := q.model.Key()
	fields := make([]any, len(key))
	for i, p := range key {
		fields[i] = p
	}
	sub, err := q.Merge(Options{KeyFields: fields})
	if err != nil {
		return nil, err
	}
	c, err := conditions.NewComparison(conditions.In, q.model.SelfRelationship(), sub)
	if err != nil {
		return nil, newError(ErrCodeInvalidCondition, "self", err, "cannot rewrite %s as a subquery", q.model)
	}
	return c, nil
}

func (q *Query) compatible(other *Query) error {
	if other == nil {
		return newError(ErrCodeIncompatibleQuery, "", nil, "cannot combine with a nil query")
	}
	if q.repository.Name() != other.repository.Name() {
		return newError(ErrCodeIncompatibleQuery, "", nil, "cannot combine a query on repository %s with one on %s",
			q.repository.Name(), other.repository.Name())
	}
	if q.model != other.model {
		return newError(ErrCodeIncompatibleQuery, "", nil, "cannot combine a %s query with a %s query", q.model, other.model)
	}
	return nil
}

func fieldList(q *Query) []any {
	out := make([]any, len(q.fields))
	for i, p := range q.fields {
		out[i] = p
	}
	return out
}
