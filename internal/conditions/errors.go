package conditions

import "errors"

var (
	// ErrUnknownSlug is returned when no comparison or operation is
	// registered for a slug.
	ErrUnknownSlug = errors.New("unknown slug")

	// ErrNotArity is returned when a second operand is added to a not operation.
	ErrNotArity = errors.New("not operation accepts exactly one operand")

	// ErrNotEvaluable is returned when a node cannot be matched in memory:
	// raw SQL fragments and unresolved subqueries.
	ErrNotEvaluable = errors.New("condition cannot be evaluated in memory")

	// ErrInvalidValue is returned when a comparison value has the wrong shape
	// for its operator or subject.
	ErrInvalidValue = errors.New("invalid comparison value")

	// ErrInvalidPath is returned when a relationship path does not chain
	// from one model to the next.
	ErrInvalidPath = errors.New("invalid relationship path")

	// ErrBlankStatement is returned for raw conditions without SQL text.
	ErrBlankStatement = errors.New("raw condition statement is blank")
)
