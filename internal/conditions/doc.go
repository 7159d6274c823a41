// Package conditions implements the condition tree evaluated by queries.
//
// A tree is built from three node kinds:
//
//   - Comparison: a leaf testing one subject (a property or relationship,
//     optionally reached through a relationship path) against one value
//     with one operator slug (eql, in, regexp, like, gt, lt, gte, lte)
//   - Operation: a composite over child nodes (and, or, not, null)
//   - RawCondition: an opaque SQL fragment with bindings; always valid,
//     never evaluable in memory
//
// Operations treat their operands as a set keyed on structural identity
// (Node.Key). Inserting an operand of the same associative slug splices its
// children, and a null operation is always dropped.
//
// Evaluation is three-valued. Ordered comparisons (and like, regexp and in)
// against a nil record value are unknown rather than false, and negating an
// unknown keeps it unknown. A record matches only when the whole tree is
// true, so neither C nor NOT(C) matches a record whose value is nil.
//
// Trees are mutable and not safe for concurrent mutation. Minimize, Clone and
// Resolve return fresh trees and never touch their input.
package conditions
