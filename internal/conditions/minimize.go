package conditions

// Minimize returns a simplified copy of n:
//
//   - null operands are dropped from an and; an or containing one is null
//   - false operands (the empty or) are dropped from an or; an and
//     containing one is false
//   - nested operations of the same slug are flattened
//   - an and or or with a single operand collapses to it
//   - an empty and is null
//   - NOT(NOT(x)) is x, NOT(null) is false and NOT(false) is null
//
// The input is not modified.
func Minimize(n Node) Node {
	switch v := n.(type) {
	case nil:
		return NewNull()
	case *Operation:
		return minimizeOperation(v)
	}
	return n.clone()
}

// IsEverything reports whether n places no constraint.
func IsEverything(n Node) bool {
	o, ok := Minimize(n).(*Operation)
	return ok && o.slug == Null
}

// IsNothing reports whether n can never match: it minimizes to the empty or.
func IsNothing(n Node) bool {
	o, ok := Minimize(n).(*Operation)
	return ok && isFalse(o)
}

func isFalse(o *Operation) bool {
	return o.slug == Or && len(o.operands) == 0
}

func minimizeOperation(o *Operation) Node {
	switch o.slug {
	case Null:
		return NewNull()
	case Not:
		if len(o.operands) == 0 {
			return &Operation{slug: Not}
		}
		inner := Minimize(o.operands[0])
		if io, ok := inner.(*Operation); ok {
			switch {
			case io.slug == Not && len(io.operands) == 1:
				child := io.operands[0]
				child.setParent(nil)
				return child
			case io.slug == Null:
				return &Operation{slug: Or}
			case isFalse(io):
				return NewNull()
			}
		}
		out := &Operation{slug: Not}
		attach(out, inner)
		return out
	}

	out := &Operation{slug: o.slug}
	seen := make(map[string]struct{}, len(o.operands))
	for _, child := range o.operands {
		m := Minimize(child)
		if mo, ok := m.(*Operation); ok {
			switch {
			case mo.slug == Null:
				if o.slug == Or {
					return NewNull()
				}
				continue
			case isFalse(mo):
				if o.slug == And {
					return &Operation{slug: Or}
				}
				continue
			case mo.slug == o.slug:
				for _, grandchild := range mo.operands {
					appendUnique(out, grandchild, seen)
				}
				continue
			}
		}
		appendUnique(out, m, seen)
	}

	switch len(out.operands) {
	case 0:
		if o.slug == And {
			return NewNull()
		}
		return out
	case 1:
		child := out.operands[0]
		child.setParent(nil)
		return child
	}
	return out
}

func appendUnique(o *Operation, n Node, seen map[string]struct{}) {
	k := structuralKey(n)
	if _, dup := seen[k]; dup {
		return
	}
	seen[k] = struct{}{}
	attach(o, n)
}

func attach(o *Operation, n Node) {
	n.setParent(o)
	o.operands = append(o.operands, n)
}
