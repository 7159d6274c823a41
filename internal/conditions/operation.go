package conditions

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/model"
)

// Operation combines child nodes with and, or, not or null.
//
// Operands form a set keyed on Node.Key: adding a structurally equal
// operand is a no-op. Adding a node moves it under the operation; use
// Clone to keep the original tree intact.
type Operation struct {
	slug     Slug
	operands []Node
	parent   *Operation
}

// NewOperation builds the operation registered for slug.
func NewOperation(slug Slug, operands ...Node) (*Operation, error) {
	if !slug.IsOperation() {
		return nil, fmt.Errorf("%w: no operation for slug %q has been defined", ErrUnknownSlug, slug)
	}
	o := &Operation{slug: slug}
	if err := o.Merge(operands...); err != nil {
		return nil, err
	}
	return o, nil
}

// NewAnd returns a conjunction of operands.
func NewAnd(operands ...Node) *Operation {
	o := &Operation{slug: And}
	for _, n := range operands {
		_ = o.Add(n)
	}
	return o
}

// NewOr returns a disjunction of operands.
func NewOr(operands ...Node) *Operation {
	o := &Operation{slug: Or}
	for _, n := range operands {
		_ = o.Add(n)
	}
	return o
}

// NewNot returns the negation of operand.
func NewNot(operand Node) *Operation {
	o := &Operation{slug: Not}
	_ = o.Add(operand)
	return o
}

// NewNull returns the operation that places no constraint.
func NewNull() *Operation {
	return &Operation{slug: Null}
}

// Add inserts operand.
//
// Null operations discard everything, and null operands are dropped by
// and and or. An and (or) operand added to an and (or) contributes its
// children instead of nesting; the children are re-parented to o and the
// operand keeps its own list. A not operation rejects a second distinct
// operand with ErrNotArity.
func (o *Operation) Add(operand Node) error {
	if operand == nil || o.slug == Null {
		return nil
	}
	associative := o.slug == And || o.slug == Or
	if inner, ok := operand.(*Operation); ok && associative {
		if inner.slug == Null {
			return nil
		}
		if inner.slug == o.slug {
			for _, child := range slices.Clone(inner.operands) {
				if err := o.Add(child); err != nil {
					return err
				}
			}
			return nil
		}
	}

	key := operand.Key()
	for _, existing := range o.operands {
		if existing.Key() == key {
			return nil
		}
	}
	if o.slug == Not && len(o.operands) > 0 {
		return fmt.Errorf("%w: cannot add %s to %s", ErrNotArity, operand, o)
	}
	operand.setParent(o)
	o.operands = append(o.operands, operand)
	return nil
}

// Merge adds each operand in turn.
func (o *Operation) Merge(operands ...Node) error {
	for _, n := range operands {
		if err := o.Add(n); err != nil {
			return err
		}
	}
	return nil
}

// Slug returns the operation slug.
func (o *Operation) Slug() Slug { return o.slug }

// Operands returns the children in insertion order.
func (o *Operation) Operands() []Node { return slices.Clone(o.operands) }

// Operand returns the only child of a not operation, or nil.
func (o *Operation) Operand() Node {
	if len(o.operands) == 0 {
		return nil
	}
	return o.operands[0]
}

// Len returns the number of operands.
func (o *Operation) Len() int { return len(o.operands) }

// Empty reports whether the operation has no operands.
func (o *Operation) Empty() bool { return len(o.operands) == 0 }

// Parent returns the enclosing operation.
func (o *Operation) Parent() *Operation { return o.parent }

func (o *Operation) setParent(p *Operation) { o.parent = p }

// Negated reports whether o sits under an odd number of not operations.
func (o *Operation) Negated() bool { return negated(o.parent) }

// Match reports whether rec satisfies o.
func (o *Operation) Match(rec model.Record) (bool, error) { return match(o, rec) }

func (o *Operation) eval(rec model.Record) (truth, error) {
	switch o.slug {
	case Null:
		return truthy, nil
	case Not:
		if len(o.operands) == 0 {
			return falsy, nil
		}
		t, err := o.operands[0].eval(rec)
		return t.not(), err
	case And:
		result := truthy
		for _, n := range o.operands {
			t, err := n.eval(rec)
			if err != nil {
				return unknown, err
			}
			switch t {
			case falsy:
				return falsy, nil
			case unknown:
				result = unknown
			}
		}
		return result, nil
	case Or:
		result := falsy
		for _, n := range o.operands {
			t, err := n.eval(rec)
			if err != nil {
				return unknown, err
			}
			switch t {
			case truthy:
				return truthy, nil
			case unknown:
				result = unknown
			}
		}
		return result, nil
	}
	return unknown, fmt.Errorf("%w: %q", ErrUnknownSlug, o.slug)
}

// Valid reports whether o can ever match. An and needs every operand
// valid, an or needs at least one, a not needs its operand valid and a
// null is always valid. Empty and, or and not operations are invalid.
func (o *Operation) Valid() bool {
	switch o.slug {
	case Null:
		return true
	case Not:
		return len(o.operands) == 1 && o.operands[0].Valid()
	case And:
		if len(o.operands) == 0 {
			return false
		}
		for _, n := range o.operands {
			if !n.Valid() {
				return false
			}
		}
		return true
	case Or:
		for _, n := range o.operands {
			if n.Valid() {
				return true
			}
		}
	}
	return false
}

// Key is the structural identity of o's minimized form. Operand order is
// not significant and an empty and equals null.
func (o *Operation) Key() string {
	return structuralKey(Minimize(o))
}

func structuralKey(n Node) string {
	o, ok := n.(*Operation)
	if !ok {
		return n.Key()
	}
	keys := make([]string, len(o.operands))
	for i, child := range o.operands {
		keys[i] = structuralKey(child)
	}
	slices.Sort(keys)
	operands := make([]any, len(keys))
	for i, k := range keys {
		operands[i] = k
	}
	return canon.MustHash(canon.DomainOperation, map[string]any{
		"slug":     string(o.slug),
		"operands": operands,
	})
}

// String renders o for debugging: " AND " and " OR " joins with composite
// children parenthesized, NOT(...) for negation. Null and an empty and
// render as TRUE, an empty or as FALSE.
func (o *Operation) String() string {
	switch o.slug {
	case Null:
		return "TRUE"
	case Not:
		if len(o.operands) == 0 {
			return "NOT()"
		}
		return "NOT(" + o.operands[0].String() + ")"
	}
	if len(o.operands) == 0 {
		if o.slug == Or {
			return "FALSE"
		}
		return "TRUE"
	}
	parts := make([]string, len(o.operands))
	for i, n := range o.operands {
		s := n.String()
		if child, ok := n.(*Operation); ok && (child.slug == And || child.slug == Or) && len(child.operands) > 1 {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+strings.ToUpper(string(o.slug))+" ")
}

func (o *Operation) clone() Node {
	cp := &Operation{slug: o.slug, operands: make([]Node, len(o.operands))}
	for i, n := range o.operands {
		child := n.clone()
		child.setParent(cp)
		cp.operands[i] = child
	}
	return cp
}
