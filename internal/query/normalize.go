package query

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
)

// New normalizes opts into a query over m read from repo.
//
// Every recognized option is type checked and every name is resolved
// against m here, so a malformed query never reaches a repository. All
// failures are *Error values matching ErrArgument.
func New(repo Repository, m *model.Model, opts Options) (*Query, error) {
	if repo == nil {
		return nil, optionError("repository", "a repository is required")
	}
	if m == nil {
		return nil, optionError("model", "a model is required")
	}
	n := &normalizer{q: &Query{
		repository: repo,
		model:      m,
		conditions: conditions.NewAnd(),
	}}
	if err := n.normalize(opts); err != nil {
		return nil, err
	}
	return n.q, nil
}

type normalizer struct {
	q *Query
}

func (n *normalizer) normalize(opts Options) error {
	q := n.q

	if v, ok := opts[KeyLinks]; ok {
		if err := n.links(v); err != nil {
			return err
		}
	}

	if v, ok := opts[KeyFields]; ok {
		if err := n.fields(v); err != nil {
			return err
		}
	} else {
		for _, p := range q.model.Properties() {
			if !p.IsLazy() {
				q.fields = append(q.fields, p)
			}
		}
	}

	if v, ok := opts[KeyOffset]; ok {
		offset, ok := intValue(v)
		if !ok || offset < 0 {
			return optionError(KeyOffset, "offset must be a non-negative integer, got %#v", v)
		}
		q.offset = offset
	}

	if v, ok := opts[KeyLimit]; ok && v != nil {
		limit, ok := intValue(v)
		if !ok || limit < 0 {
			return optionError(KeyLimit, "limit must be a non-negative integer, got %#v", v)
		}
		q.limit, q.bounded = limit, true
	}

	if q.offset > 0 && !q.bounded {
		return optionError(KeyOffset, "offset %d requires a limit", q.offset)
	}

	if v, ok := opts[KeyOrder]; ok {
		if err := n.order(v); err != nil {
			return err
		}
	} else {
		for _, spec := range q.model.DefaultOrder(q.repository.Name()) {
			q.order = append(q.order, Direction{Property: spec.Property, Descending: spec.Descending})
		}
	}

	for _, flag := range []struct {
		key string
		dst *bool
	}{
		{KeyUnique, &q.unique},
		{KeyAddReversed, &q.addReversed},
		{KeyReload, &q.reload},
	} {
		v, ok := opts[flag.key]
		if !ok {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return optionError(flag.key, "%s must be a boolean, got %#v", flag.key, v)
		}
		*flag.dst = b
		if flag.key == KeyUnique {
			q.uniqueSet = true
		}
	}

	if v, ok := opts[KeyConditions]; ok {
		if err := n.conditions(v); err != nil {
			return err
		}
	}

	for _, k := range conditionKeys(opts) {
		if err := n.condition(k, opts[k]); err != nil {
			return err
		}
	}

	if !q.uniqueSet {
		q.unique = len(q.links) > 0
	}
	return nil
}

// conditionKeys returns the keys of opts that are not recognized options,
// in a deterministic order.
func conditionKeys(opts Options) []any {
	var keys []any
	for k := range opts {
		if _, ok := isOptionKey(k); !ok {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []any) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keyName(keys[i]), keyName(keys[j])
		if a != b {
			return a < b
		}
		return fmt.Sprintf("%T", keys[i]) < fmt.Sprintf("%T", keys[j])
	})
}

func keyName(k any) string {
	if op, ok := k.(Operator); ok {
		return op.String()
	}
	return targetName(k)
}

func (n *normalizer) fields(v any) error {
	items, ok := asList(v)
	if !ok {
		return optionError(KeyFields, "fields must be a list, got %T", v)
	}
	if len(items) == 0 {
		return optionError(KeyFields, "fields must not be empty")
	}
	seen := make(map[*model.Property]bool, len(items))
	for _, item := range items {
		p, err := n.property(KeyFields, item)
		if err != nil {
			return err
		}
		if !seen[p] {
			seen[p] = true
			n.q.fields = append(n.q.fields, p)
		}
	}
	return nil
}

// property resolves a name or *model.Property against the query's model.
func (n *normalizer) property(option string, item any) (*model.Property, error) {
	m := n.q.model
	switch v := item.(type) {
	case string:
		p, ok := m.Property(v)
		if !ok {
			return nil, newError(ErrCodeUnknownProperty, option, nil, "%q is not a property of %s", v, m)
		}
		return p, nil
	case *model.Property:
		if !m.HasProperty(v) {
			return nil, newError(ErrCodeUnknownProperty, option, nil, "%s is not a property of %s", v, m)
		}
		return v, nil
	}
	return nil, optionError(option, "unsupported %s entry %#v (%T)", option, item, item)
}

func (n *normalizer) links(v any) error {
	items, ok := asList(v)
	if !ok {
		return optionError(KeyLinks, "links must be a list, got %T", v)
	}
	if len(items) == 0 {
		return optionError(KeyLinks, "links must not be empty")
	}
	for _, item := range items {
		var rel *model.Relationship
		switch r := item.(type) {
		case string:
			found, ok := n.q.model.Relationship(r)
			if !ok {
				return newError(ErrCodeUnknownRelationship, KeyLinks, nil, "%q is not a relationship of %s", r, n.q.model)
			}
			rel = found
		case *model.Relationship:
			rel = r
		default:
			return optionError(KeyLinks, "unsupported links entry %#v (%T)", item, item)
		}
		if err := n.addLink(rel); err != nil {
			return err
		}
	}
	return nil
}

// addLink appends rel unless already linked. rel must start at the
// query's model or at the target of an earlier link.
func (n *normalizer) addLink(rel *model.Relationship) error {
	reachable := n.q.model.Descends(rel.Source())
	for _, link := range n.q.links {
		if link.String() == rel.String() {
			return nil
		}
		if link.Target().Descends(rel.Source()) {
			reachable = true
		}
	}
	if !reachable {
		return newError(ErrCodeUnknownRelationship, KeyLinks, nil, "%s is not reachable from %s", rel, n.q.model)
	}
	n.q.links = append(n.q.links, rel)
	return nil
}

func (n *normalizer) order(v any) error {
	items, ok := asList(v)
	if !ok {
		return optionError(KeyOrder, "order must be a list, got %T", v)
	}
	if len(items) == 0 {
		return optionError(KeyOrder, "order must not be empty")
	}
	seen := make(map[*model.Property]bool, len(items))
	for _, item := range items {
		d, err := n.direction(item)
		if err != nil {
			return err
		}
		if !seen[d.Property] {
			seen[d.Property] = true
			n.q.order = append(n.q.order, d)
		}
	}
	return nil
}

func (n *normalizer) direction(item any) (Direction, error) {
	switch v := item.(type) {
	case Direction:
		p, err := n.property(KeyOrder, v.Property)
		return Direction{Property: p, Descending: v.Descending}, err
	case model.OrderSpec:
		p, err := n.property(KeyOrder, v.Property)
		return Direction{Property: p, Descending: v.Descending}, err
	case Operator:
		if v.Slug != SlugAsc && v.Slug != SlugDesc {
			return Direction{}, optionError(KeyOrder, "%s is not an order operator", v)
		}
		p, err := n.property(KeyOrder, v.Target)
		return Direction{Property: p, Descending: v.Slug == SlugDesc}, err
	case string:
		name, desc := v, false
		if i := strings.LastIndex(v, "."); i > 0 {
			switch conditions.Slug(v[i+1:]) {
			case SlugAsc:
				name = v[:i]
			case SlugDesc:
				name, desc = v[:i], true
			}
		}
		p, err := n.property(KeyOrder, name)
		return Direction{Property: p, Descending: desc}, err
	}
	p, err := n.property(KeyOrder, item)
	return Direction{Property: p}, err
}

func (n *normalizer) conditions(v any) error {
	switch c := v.(type) {
	case nil:
		return nil
	case conditions.Node:
		for _, cmp := range conditions.Comparisons(c) {
			for _, rel := range cmp.Path() {
				if err := n.addLink(rel); err != nil {
					return err
				}
			}
		}
		return n.q.conditions.Add(conditions.Clone(c))
	case Options:
		return n.conditionMap(c)
	case map[any]any:
		return n.conditionMap(Options(c))
	case map[string]any:
		m := make(Options, len(c))
		for k, val := range c {
			m[k] = val
		}
		return n.conditionMap(m)
	}

	items, ok := asList(v)
	if !ok || len(items) == 0 {
		return optionError(KeyConditions, "conditions must be a map, a node or a raw [statement, bindings...] list, got %T", v)
	}
	stmt, ok := items[0].(string)
	if !ok {
		return optionError(KeyConditions, "raw condition statement must be a string, got %T", items[0])
	}
	raw, err := conditions.NewRawCondition(stmt, items[1:]...)
	if err != nil {
		return newError(ErrCodeInvalidCondition, KeyConditions, err, "raw condition rejected")
	}
	return n.q.conditions.Add(raw)
}

func (n *normalizer) conditionMap(m Options) error {
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		if err := n.condition(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// condition turns one key/value entry into a comparison under the root.
func (n *normalizer) condition(key, value any) error {
	option := keyName(key)
	path, subject, slug, err := n.resolveKey(option, key)
	if err != nil {
		return err
	}

	negate := slug == SlugNot
	if negate {
		slug = ""
	}
	if slug == SlugAsc || slug == SlugDesc {
		return newError(ErrCodeInvalidCondition, option, nil, "%s is an order operator", slug)
	}

	if sub, ok := value.(*Query); ok {
		restricted, err := n.subquery(option, subject, sub)
		if err != nil {
			return err
		}
		value = restricted
	}
	if slug == "" {
		slug = inferSlug(value)
	}

	c, err := conditions.NewPathComparison(slug, path, subject, value)
	if err != nil {
		return newError(ErrCodeInvalidCondition, option, err, "cannot compare %s", option)
	}
	for _, rel := range path {
		if err := n.addLink(rel); err != nil {
			return err
		}
	}

	var node conditions.Node = c
	if negate {
		node = conditions.NewNot(c)
	}
	return n.q.conditions.Add(node)
}

func (n *normalizer) resolveKey(option string, key any) ([]*model.Relationship, model.Subject, conditions.Slug, error) {
	m := n.q.model
	switch k := key.(type) {
	case string:
		return n.resolveName(k)
	case *model.Property:
		if !m.HasProperty(k) {
			return nil, nil, "", newError(ErrCodeUnknownProperty, option, nil, "%s is not a property of %s", k, m)
		}
		return nil, k, "", nil
	case *model.Relationship:
		if !m.Descends(k.Source()) {
			return nil, nil, "", newError(ErrCodeUnknownRelationship, option, nil, "%s is not a relationship of %s", k, m)
		}
		return nil, k, "", nil
	case *Path:
		if !m.Descends(k.Model()) {
			return nil, nil, "", newError(ErrCodeUnsupportedKey, option, nil, "path %s starts at %s, not %s", k, k.Model(), m)
		}
		return k.Relationships(), k.Subject(), "", nil
	case Operator:
		if _, nested := k.Target.(Operator); nested {
			return nil, nil, "", newError(ErrCodeUnsupportedKey, option, nil, "operators cannot be nested")
		}
		path, subject, _, err := n.resolveKey(option, k.Target)
		return path, subject, k.Slug, err
	}
	return nil, nil, "", newError(ErrCodeUnsupportedKey, option, nil, "unsupported condition key %#v (%T)", key, key)
}

// resolveName resolves "name", "name.gte", "author.name" and
// "author.name.like" against the query's model.
func (n *normalizer) resolveName(name string) ([]*model.Relationship, model.Subject, conditions.Slug, error) {
	m := n.q.model
	if p, ok := m.Property(name); ok {
		return nil, p, "", nil
	}
	if r, ok := m.Relationship(name); ok {
		return nil, r, "", nil
	}

	parts := strings.Split(name, ".")
	var slug conditions.Slug
	if last := parts[len(parts)-1]; len(parts) > 1 && isOperatorSlug(last) {
		slug = conditions.Slug(last)
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 1 {
		if p, ok := m.Property(parts[0]); ok {
			return nil, p, slug, nil
		}
		if r, ok := m.Relationship(parts[0]); ok {
			return nil, r, slug, nil
		}
		return nil, nil, "", newError(ErrCodeUnknownProperty, name, nil, "%q is not a property or relationship of %s", parts[0], m)
	}
	p, err := NewPath(m, parts...)
	if err != nil {
		return nil, nil, "", err
	}
	return p.relationships, p.subject, slug, nil
}

// subquery restricts sub to the target key of the relationship it is
// compared with.
func (n *normalizer) subquery(option string, subject model.Subject, sub *Query) (*Query, error) {
	rel, ok := subject.(*model.Relationship)
	if !ok {
		return nil, newError(ErrCodeInvalidCondition, option, nil, "a subquery can only be compared with a relationship, not %s", subject)
	}
	if sub.repository.Name() != n.q.repository.Name() {
		return nil, newError(ErrCodeIncompatibleQuery, option, nil, "subquery reads %s, query reads %s", sub.repository.Name(), n.q.repository.Name())
	}
	if !sub.model.Descends(rel.Target()) {
		return nil, newError(ErrCodeInvalidCondition, option, nil, "subquery selects %s, %s needs %s", sub.model, rel, rel.Target())
	}
	fields := make([]any, len(rel.TargetKey()))
	for i, p := range rel.TargetKey() {
		fields[i] = p
	}
	return sub.Merge(Options{KeyFields: fields})
}

// inferSlug picks the comparison for a bare value: in for lists, ranges
// and subqueries, regexp for patterns, eql otherwise.
func inferSlug(value any) conditions.Slug {
	switch v := value.(type) {
	case conditions.Range, conditions.Subquery:
		return conditions.In
	case *regexp.Regexp:
		return conditions.Regexp
	case []byte, model.Key, nil:
		return conditions.Eql
	default:
		if reflect.TypeOf(v).Kind() == reflect.Slice {
			return conditions.In
		}
	}
	return conditions.Eql
}

// asList expands slices into []any. Strings are not lists.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case nil, string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
