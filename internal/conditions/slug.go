package conditions

import "fmt"

// Slug names a comparison or operation variant.
type Slug string

// Comparison slugs.
const (
	Eql    Slug = "eql"
	In     Slug = "in"
	Regexp Slug = "regexp"
	Like   Slug = "like"
	Gt     Slug = "gt"
	Lt     Slug = "lt"
	Gte    Slug = "gte"
	Lte    Slug = "lte"
)

// Operation slugs.
const (
	And  Slug = "and"
	Or   Slug = "or"
	Not  Slug = "not"
	Null Slug = "null"
)

// Raw is the slug reported by RawCondition.
const Raw Slug = "raw"

// comparator is the behavior registered for a comparison slug.
type comparator struct {
	// symbol is the infix operator used by String.
	symbol string

	// ordered comparisons treat a nil record value as unknown.
	ordered bool

	// test evaluates a non-nil record value against the comparison value.
	test func(c *Comparison, field any) (truth, error)
}

// comparators is the closed registry of comparison slugs.
var comparators = map[Slug]comparator{
	Eql:    {symbol: "=", test: testEql},
	In:     {symbol: "IN", test: testIn},
	Regexp: {symbol: "=~", test: testRegexp},
	Like:   {symbol: "LIKE", test: testLike},
	Gt:     {symbol: ">", ordered: true, test: testOrdered(func(c int) bool { return c > 0 })},
	Lt:     {symbol: "<", ordered: true, test: testOrdered(func(c int) bool { return c < 0 })},
	Gte:    {symbol: ">=", ordered: true, test: testOrdered(func(c int) bool { return c >= 0 })},
	Lte:    {symbol: "<=", ordered: true, test: testOrdered(func(c int) bool { return c <= 0 })},
}

// ComparisonSlugs lists the registered comparison slugs.
var ComparisonSlugs = []Slug{Eql, In, Regexp, Like, Gt, Lt, Gte, Lte}

// OperationSlugs lists the operation slugs.
var OperationSlugs = []Slug{And, Or, Not, Null}

// IsComparison reports whether s names a comparison.
func (s Slug) IsComparison() bool {
	_, ok := comparators[s]
	return ok
}

// IsOperation reports whether s names an operation.
func (s Slug) IsOperation() bool {
	switch s {
	case And, Or, Not, Null:
		return true
	}
	return false
}

// ParseSlug resolves a slug by name.
func ParseSlug(name string) (Slug, error) {
	s := Slug(name)
	if s.IsComparison() || s.IsOperation() {
		return s, nil
	}
	return "", fmt.Errorf("%w: no comparison for slug %q has been defined", ErrUnknownSlug, name)
}

// Symbol returns the infix operator used when rendering a comparison.
func (s Slug) Symbol() string {
	return comparators[s].symbol
}
