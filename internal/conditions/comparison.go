package conditions

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/model"
)

// Subquery is a nested query whose records supply the candidate keys of a
// relationship comparison. *query.Query implements it.
type Subquery interface {
	Model() *model.Model
	Records(ctx context.Context) ([]model.Record, error)
	String() string
}

// Comparison tests one subject against one value with one operator.
//
// The subject never changes after construction. For properties the value
// is typecast to the property's primitive; for relationships it is reduced
// to the set of target keys a candidate's source key must fall in.
type Comparison struct {
	slug    Slug
	subject model.Subject
	path    []*model.Relationship
	parent  *Operation

	// value is the loaded value: a scalar for eql and ordered slugs, []any or
	// Range for in, *regexp.Regexp for regexp, the pattern for like, and
	// []model.Key (or nil) for relationship subjects.
	value any

	pattern *regexp.Regexp
	keySet  map[string]struct{}
	sub     Subquery
}

// NewComparison builds the comparison registered for slug.
func NewComparison(slug Slug, subject model.Subject, value any) (*Comparison, error) {
	return NewPathComparison(slug, nil, subject, value)
}

// NewPathComparison builds a comparison on a subject reached by following
// path from the query's model. The path is part of the comparison's identity.
func NewPathComparison(slug Slug, path []*model.Relationship, subject model.Subject, value any) (*Comparison, error) {
	if _, ok := comparators[slug]; !ok {
		return nil, fmt.Errorf("%w: no comparison for slug %q has been defined", ErrUnknownSlug, slug)
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: comparison %s has no subject", ErrInvalidValue, slug)
	}
	if err := checkPath(path, subject); err != nil {
		return nil, err
	}

	c := &Comparison{slug: slug, subject: subject, path: slices.Clone(path)}

	var err error
	switch s := subject.(type) {
	case *model.Property:
		err = c.loadProperty(s, value)
	case *model.Relationship:
		err = c.loadRelationship(s, value)
	default:
		err = fmt.Errorf("%w: unsupported subject %T", ErrInvalidValue, subject)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func checkPath(path []*model.Relationship, subject model.Subject) error {
	for i, rel := range path {
		if rel == nil {
			return fmt.Errorf("%w: nil relationship at %d", ErrInvalidPath, i)
		}
		if i > 0 && !path[i-1].Target().Descends(rel.Source()) {
			return fmt.Errorf("%w: %s does not start at %s", ErrInvalidPath, rel, path[i-1].Target())
		}
	}
	if len(path) > 0 && !path[len(path)-1].Target().Descends(subject.Model()) {
		return fmt.Errorf("%w: %s is not reachable through %s", ErrInvalidPath, subject, path[len(path)-1])
	}
	return nil
}

func (c *Comparison) loadProperty(p *model.Property, value any) error {
	switch c.slug {
	case In:
		return c.loadInclusion(p, value)
	case Like:
		pattern, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: like on %s needs a string pattern, got %T", ErrInvalidValue, p, value)
		}
		re, err := likePattern(pattern)
		if err != nil {
			return fmt.Errorf("%w: like pattern %q: %v", ErrInvalidValue, pattern, err)
		}
		c.value, c.pattern = pattern, re
		return nil
	case Regexp:
		switch re := value.(type) {
		case *regexp.Regexp:
			if re == nil {
				return fmt.Errorf("%w: regexp on %s is nil", ErrInvalidValue, p)
			}
			c.value = re
		case string:
			compiled, err := regexp.Compile(re)
			if err != nil {
				return fmt.Errorf("%w: regexp %q: %v", ErrInvalidValue, re, err)
			}
			c.value = compiled
		default:
			return fmt.Errorf("%w: regexp on %s needs a pattern, got %T", ErrInvalidValue, p, value)
		}
		return nil
	}

	v, err := p.Typecast(value)
	if err != nil {
		return err
	}
	c.value = v
	return nil
}

func (c *Comparison) loadInclusion(p *model.Property, value any) error {
	if r, ok := value.(Range); ok {
		lo, err := p.Typecast(r.Min)
		if err != nil {
			return err
		}
		hi, err := p.Typecast(r.Max)
		if err != nil {
			return err
		}
		c.value = Range{Min: lo, Max: hi, ExcludeEnd: r.ExcludeEnd}
		return nil
	}

	items, ok := flatten(value)
	if !ok {
		items = []any{value}
	}
	seen := make(map[string]struct{}, len(items))
	list := make([]any, 0, len(items))
	for _, item := range items {
		v, err := p.Typecast(item)
		if err != nil {
			return err
		}
		k := CanonicalString(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		list = append(list, v)
	}
	c.value = list
	return nil
}

func (c *Comparison) loadRelationship(rel *model.Relationship, value any) error {
	if c.slug != Eql && c.slug != In {
		return fmt.Errorf("%w: relationship %s supports only eql and in, got %s", ErrInvalidValue, rel, c.slug)
	}
	switch v := value.(type) {
	case nil:
		if c.slug == In {
			return fmt.Errorf("%w: in on %s needs a value", ErrInvalidValue, rel)
		}
		return nil
	case Subquery:
		if !v.Model().Descends(rel.Target()) {
			return fmt.Errorf("%w: subquery on %s selects %s", ErrInvalidValue, rel, v.Model())
		}
		c.sub = v
		return nil
	}
	keys, err := relationshipKeys(rel, value)
	if err != nil {
		return err
	}
	c.setKeys(keys)
	return nil
}

func (c *Comparison) setKeys(keys []model.Key) {
	c.value = keys
	c.keySet = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		c.keySet[CanonicalString(k)] = struct{}{}
	}
}

// relationshipKeys reduces records, attribute maps, keys or scalars to the
// distinct target keys of rel. Records without a complete key are skipped.
func relationshipKeys(rel *model.Relationship, value any) ([]model.Key, error) {
	items, ok := flatten(value)
	if !ok {
		items = []any{value}
	}
	seen := make(map[string]struct{}, len(items))
	var keys []model.Key
	for _, item := range items {
		key, ok, err := targetKey(rel, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		k := CanonicalString(key)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

func targetKey(rel *model.Relationship, item any) (model.Key, bool, error) {
	props := rel.TargetKey()
	switch v := item.(type) {
	case nil:
		return nil, false, nil
	case model.Key:
		if len(v) != len(props) {
			return nil, false, fmt.Errorf("%w: key %v does not fit %s", ErrInvalidValue, v, rel)
		}
		key := make(model.Key, len(v))
		for i, p := range props {
			cast, err := p.Typecast(v[i])
			if err != nil {
				return nil, false, err
			}
			key[i] = cast
		}
		return key, true, nil
	}
	if rec, ok := model.AsRecord(item); ok {
		key, ok := rel.TargetValues(rec)
		return key, ok, nil
	}
	if len(props) != 1 {
		return nil, false, fmt.Errorf("%w: %T cannot identify a record of %s", ErrInvalidValue, item, rel.Target())
	}
	cast, err := props[0].Typecast(item)
	if err != nil {
		return nil, false, err
	}
	return model.Key{cast}, true, nil
}

// Slug returns the operator slug.
func (c *Comparison) Slug() Slug { return c.slug }

// Subject returns the tested property or relationship.
func (c *Comparison) Subject() model.Subject { return c.subject }

// Property returns the subject when it is a property.
func (c *Comparison) Property() (*model.Property, bool) {
	p, ok := c.subject.(*model.Property)
	return p, ok
}

// Relationship returns the subject when it is a relationship.
func (c *Comparison) Relationship() (*model.Relationship, bool) {
	r, ok := c.subject.(*model.Relationship)
	return r, ok
}

// Path returns the relationships traversed to reach the subject.
func (c *Comparison) Path() []*model.Relationship { return slices.Clone(c.path) }

// Value returns the loaded value.
func (c *Comparison) Value() any { return c.value }

// Keys returns the candidate target keys of a relationship comparison.
func (c *Comparison) Keys() []model.Key {
	keys, _ := c.value.([]model.Key)
	return keys
}

// Subquery returns the unresolved subquery of a relationship comparison.
func (c *Comparison) Subquery() Subquery { return c.sub }

// DumpedValue returns the value in its storage representation.
func (c *Comparison) DumpedValue() any {
	switch s := c.subject.(type) {
	case *model.Property:
		switch v := c.value.(type) {
		case Range:
			return Range{Min: s.Dump(v.Min), Max: s.Dump(v.Max), ExcludeEnd: v.ExcludeEnd}
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = s.Dump(item)
			}
			return out
		case *regexp.Regexp:
			return v.String()
		}
		return s.Dump(c.value)
	case *model.Relationship:
		keys := c.Keys()
		if keys == nil {
			return nil
		}
		props := s.TargetKey()
		out := make([]model.Key, len(keys))
		for i, key := range keys {
			dumped := make(model.Key, len(key))
			for j, v := range key {
				dumped[j] = props[j].Dump(v)
			}
			out[i] = dumped
		}
		return out
	}
	return c.value
}

// Parent returns the enclosing operation.
func (c *Comparison) Parent() *Operation { return c.parent }

func (c *Comparison) setParent(p *Operation) { c.parent = p }

// Negated reports whether c sits under an odd number of not operations.
func (c *Comparison) Negated() bool { return negated(c.parent) }

// Match reports whether rec satisfies c.
func (c *Comparison) Match(rec model.Record) (bool, error) { return match(c, rec) }

func (c *Comparison) eval(rec model.Record) (truth, error) {
	t, err := c.evalPath(rec, c.path)
	if err != nil || !toMany(c.path) {
		return t, err
	}
	// Through a to-many path the comparison asks whether some related
	// record matches. Only an unreachable path stays unknown.
	if t == unknown && !reachable(rec, c.path) {
		return unknown, nil
	}
	return truthOf(t == truthy), nil
}

// evalPath follows path through nested related records. A hop matches
// when any related record matches; no related record is unknown, matching
// the inner join the SQL rendition uses.
func (c *Comparison) evalPath(rec model.Record, path []*model.Relationship) (truth, error) {
	if len(path) == 0 {
		return c.evalSubject(rec)
	}
	related := relatedRecords(rec, path[0])
	if len(related) == 0 {
		return unknown, nil
	}
	result := falsy
	for _, r := range related {
		t, err := c.evalPath(r, path[1:])
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

func toMany(path []*model.Relationship) bool {
	for _, rel := range path {
		if rel.Cardinality() != model.ManyToOne {
			return true
		}
	}
	return false
}

// reachable reports whether rec has at least one complete chain of related
// records along path.
func reachable(rec model.Record, path []*model.Relationship) bool {
	if len(path) == 0 {
		return true
	}
	for _, r := range relatedRecords(rec, path[0]) {
		if reachable(r, path[1:]) {
			return true
		}
	}
	return false
}

func relatedRecords(rec model.Record, rel *model.Relationship) []model.Record {
	v, ok := rel.Get(rec)
	if !ok || v == nil {
		return nil
	}
	if r, ok := model.AsRecord(v); ok {
		return []model.Record{r}
	}
	items, ok := flatten(v)
	if !ok {
		return nil
	}
	out := make([]model.Record, 0, len(items))
	for _, item := range items {
		if r, ok := model.AsRecord(item); ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Comparison) evalSubject(rec model.Record) (truth, error) {
	switch s := c.subject.(type) {
	case *model.Property:
		raw, _ := s.Get(rec)
		field, err := s.Typecast(raw)
		if err != nil {
			return unknown, err
		}
		if field == nil {
			return c.evalNil(), nil
		}
		return comparators[c.slug].test(c, field)
	case *model.Relationship:
		if c.sub != nil {
			return unknown, fmt.Errorf("%w: subquery on %s is not resolved", ErrNotEvaluable, s)
		}
		src, ok := s.SourceValues(rec)
		if c.value == nil {
			return truthOf(!ok), nil
		}
		if !ok {
			return unknown, nil
		}
		_, hit := c.keySet[CanonicalString(src)]
		return truthOf(hit), nil
	}
	return unknown, fmt.Errorf("%w: unsupported subject %T", ErrInvalidValue, c.subject)
}

// evalNil handles a nil record value. Only eql, and in with a nil member,
// can be decided; everything else is unknown.
func (c *Comparison) evalNil() truth {
	switch c.slug {
	case Eql:
		return truthOf(c.value == nil)
	case In:
		if list, ok := c.value.([]any); ok && slices.Contains(list, nil) {
			return truthy
		}
	}
	return unknown
}

func testEql(c *Comparison, field any) (truth, error) {
	return truthOf(equalValues(field, c.value)), nil
}

func testIn(c *Comparison, field any) (truth, error) {
	switch v := c.value.(type) {
	case Range:
		return v.contains(field)
	case []any:
		for _, item := range v {
			if equalValues(field, item) {
				return truthy, nil
			}
		}
	}
	return falsy, nil
}

func testRegexp(c *Comparison, field any) (truth, error) {
	re := c.value.(*regexp.Regexp)
	return truthOf(re.MatchString(textOf(field))), nil
}

func testLike(c *Comparison, field any) (truth, error) {
	return truthOf(c.pattern.MatchString(textOf(field))), nil
}

func testOrdered(accept func(int) bool) func(*Comparison, any) (truth, error) {
	return func(c *Comparison, field any) (truth, error) {
		if c.value == nil {
			return unknown, nil
		}
		cmp, err := compareValues(field, c.value)
		if err != nil {
			return unknown, err
		}
		return truthOf(accept(cmp)), nil
	}
}

func textOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return val.String()
	}
	return fmt.Sprint(v)
}

// Valid reports whether c can ever match: ordered comparisons need a
// value, inclusions need a non-empty set and eql honors required properties.
func (c *Comparison) Valid() bool {
	switch s := c.subject.(type) {
	case *model.Property:
		switch c.slug {
		case Eql:
			return s.Valid(c.value, c.Negated())
		case In:
			switch v := c.value.(type) {
			case Range:
				return !v.empty()
			case []any:
				if len(v) == 0 {
					return false
				}
				for _, item := range v {
					if !s.Valid(item, c.Negated()) {
						return false
					}
				}
				return true
			}
			return false
		case Gt, Lt, Gte, Lte:
			return c.value != nil
		}
		return c.value != nil
	case *model.Relationship:
		if c.sub != nil || (c.slug == Eql && c.value == nil) {
			return true
		}
		return len(c.Keys()) > 0
	}
	return false
}

// Key is the structural identity of c: slug, subject, path and value.
// Inclusion sets compare without regard to order.
func (c *Comparison) Key() string {
	path := make([]any, len(c.path))
	for i, rel := range c.path {
		path[i] = rel.String()
	}
	subject := "property:" + c.subject.String()
	if _, ok := c.subject.(*model.Relationship); ok {
		subject = "relationship:" + c.subject.String()
	}

	var value any
	switch v := c.value.(type) {
	case []any:
		value = sortedCanonical(v)
	case []model.Key:
		items := make([]any, len(v))
		for i, k := range v {
			items[i] = k
		}
		value = sortedCanonical(items)
	default:
		value = canonicalValue(v)
	}
	if c.sub != nil {
		value = canonicalValue(c.sub)
	}

	return canon.MustHash(canon.DomainComparison, map[string]any{
		"slug":    string(c.slug),
		"subject": subject,
		"path":    path,
		"value":   value,
	})
}

func sortedCanonical(items []any) []any {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = CanonicalString(item)
	}
	slices.Sort(texts)
	out := make([]any, len(texts))
	for i, t := range texts {
		out[i] = t
	}
	return out
}

// String renders c as "name = 'Dan Kubb'", "age IN [1, 5]" and so on.
func (c *Comparison) String() string {
	names := make([]string, 0, len(c.path)+1)
	for _, rel := range c.path {
		names = append(names, rel.Name())
	}
	names = append(names, c.subject.Name())
	subject := strings.Join(names, ".")

	value := formatValue(c.value)
	if c.sub != nil {
		value = formatValue(c.sub)
	} else if keys, ok := c.value.([]model.Key); ok {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = formatValue(k)
		}
		value = "[" + strings.Join(parts, ", ") + "]"
	}
	return subject + " " + c.slug.Symbol() + " " + value
}

func (c *Comparison) clone() Node {
	cp := *c
	cp.parent = nil
	cp.path = slices.Clone(c.path)
	return &cp
}
