package conditions

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/model"
)

// RawCondition is a trusted SQL fragment with positional bindings.
// It is always valid and cannot be evaluated in memory.
type RawCondition struct {
	sql      string
	bindings []any
	parent   *Operation
}

// NewRawCondition wraps a SQL fragment. Blank statements are rejected.
func NewRawCondition(sql string, bindings ...any) (*RawCondition, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, ErrBlankStatement
	}
	return &RawCondition{sql: sql, bindings: slices.Clone(bindings)}, nil
}

// SQL returns the fragment text.
func (r *RawCondition) SQL() string { return r.sql }

// Bindings returns the positional bindings.
func (r *RawCondition) Bindings() []any { return slices.Clone(r.bindings) }

// Slug returns Raw.
func (r *RawCondition) Slug() Slug { return Raw }

// Match always fails with ErrNotEvaluable.
func (r *RawCondition) Match(model.Record) (bool, error) {
	return false, fmt.Errorf("%w: raw condition %q", ErrNotEvaluable, r.sql)
}

func (r *RawCondition) eval(model.Record) (truth, error) {
	return unknown, fmt.Errorf("%w: raw condition %q", ErrNotEvaluable, r.sql)
}

// Valid is always true.
func (r *RawCondition) Valid() bool { return true }

// Parent returns the enclosing operation.
func (r *RawCondition) Parent() *Operation { return r.parent }

func (r *RawCondition) setParent(p *Operation) { r.parent = p }

// Negated reports whether r sits under an odd number of not operations.
func (r *RawCondition) Negated() bool { return negated(r.parent) }

// Key is the identity of the statement and its bindings.
func (r *RawCondition) Key() string {
	bindings := make([]any, len(r.bindings))
	for i, b := range r.bindings {
		bindings[i] = canonicalValue(b)
	}
	return canon.MustHash(canon.DomainRaw, map[string]any{
		"sql":      r.sql,
		"bindings": bindings,
	})
}

func (r *RawCondition) String() string {
	if len(r.bindings) == 0 {
		return "(" + r.sql + ")"
	}
	return "(" + r.sql + ") " + formatValue(r.bindings)
}

func (r *RawCondition) clone() Node {
	return &RawCondition{sql: r.sql, bindings: slices.Clone(r.bindings)}
}
