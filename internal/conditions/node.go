package conditions

import "github.com/roach88/relq/internal/model"

// truth is a three-valued logic value.
type truth int8

const (
	unknown truth = iota
	falsy
	truthy
)

func truthOf(b bool) truth {
	if b {
		return truthy
	}
	return falsy
}

func (t truth) not() truth {
	switch t {
	case truthy:
		return falsy
	case falsy:
		return truthy
	}
	return unknown
}

// Node is an element of a condition tree.
//
// This is a sealed interface: Comparison, Operation and RawCondition are
// the only implementations.
type Node interface {
	// Slug names the node variant.
	Slug() Slug

	// Match reports whether rec satisfies the node.
	Match(rec model.Record) (bool, error)

	// Valid reports whether the node can ever match.
	Valid() bool

	// Negated reports whether the node sits under an odd number of not
	// operations. It is computed from the parent chain on each call.
	Negated() bool

	// Parent returns the enclosing operation, or nil at the root.
	Parent() *Operation

	// Key is the structural identity of the node. Two nodes with equal keys
	// are interchangeable.
	Key() string

	String() string

	setParent(*Operation)
	eval(rec model.Record) (truth, error)
	clone() Node
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// Clone returns a deep copy of n detached from any parent.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	return n.clone()
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if op, ok := n.(*Operation); ok {
		for _, child := range op.operands {
			Walk(child, fn)
		}
	}
}

// Comparisons returns every comparison in n in depth-first order.
func Comparisons(n Node) []*Comparison {
	var out []*Comparison
	Walk(n, func(n Node) bool {
		if c, ok := n.(*Comparison); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}

func negated(parent *Operation) bool {
	neg := false
	for p := parent; p != nil; p = p.parent {
		if p.slug == Not {
			neg = !neg
		}
	}
	return neg
}

func match(n Node, rec model.Record) (bool, error) {
	t, err := n.eval(rec)
	if err != nil {
		return false, err
	}
	return t == truthy, nil
}
