package query

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
)

// Options is the loosely typed input of New.
//
// Recognized keys are the strings listed in OptionKeys. Every other key is
// a condition: a property or relationship name (possibly dotted through
// relationships), a *model.Property, a *model.Relationship, a *Path or an
// Operator.
type Options map[any]any

// Option key names.
const (
	KeyFields      = "fields"
	KeyLinks       = "links"
	KeyConditions  = "conditions"
	KeyOffset      = "offset"
	KeyLimit       = "limit"
	KeyOrder       = "order"
	KeyUnique      = "unique"
	KeyAddReversed = "add_reversed"
	KeyReload      = "reload"
)

// OptionKeys lists the recognized option keys.
var OptionKeys = []string{
	KeyFields, KeyLinks, KeyConditions, KeyOffset, KeyLimit,
	KeyOrder, KeyUnique, KeyAddReversed, KeyReload,
}

func isOptionKey(k any) (string, bool) {
	s, ok := k.(string)
	if !ok {
		return "", false
	}
	for _, name := range OptionKeys {
		if s == name {
			return s, true
		}
	}
	return "", false
}

// Clone returns a shallow copy of o.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Operator slugs that are not comparisons.
const (
	SlugNot  conditions.Slug = "not"
	SlugAsc  conditions.Slug = "asc"
	SlugDesc conditions.Slug = "desc"
)

// Operator pairs a condition or order target with a slug, e.g. Gte("age")
// as a condition key or Desc("name") as an order entry.
type Operator struct {
	// Target is a property name, *model.Property, *model.Relationship or *Path.
	Target any

	// Slug is a comparison slug, SlugNot, SlugAsc or SlugDesc.
	Slug conditions.Slug
}

func (o Operator) String() string {
	return targetName(o.Target) + "." + string(o.Slug)
}

func isOperatorSlug(s string) bool {
	slug := conditions.Slug(s)
	return slug.IsComparison() || slug == SlugNot || slug == SlugAsc || slug == SlugDesc
}

// Eql wraps target with the eql slug.
func Eql(target any) Operator { return Operator{Target: target, Slug: conditions.Eql} }

// In wraps target with the in slug.
func In(target any) Operator { return Operator{Target: target, Slug: conditions.In} }

// Gt wraps target with the gt slug.
func Gt(target any) Operator { return Operator{Target: target, Slug: conditions.Gt} }

// Gte wraps target with the gte slug.
func Gte(target any) Operator { return Operator{Target: target, Slug: conditions.Gte} }

// Lt wraps target with the lt slug.
func Lt(target any) Operator { return Operator{Target: target, Slug: conditions.Lt} }

// Lte wraps target with the lte slug.
func Lte(target any) Operator { return Operator{Target: target, Slug: conditions.Lte} }

// Like wraps target with the like slug.
func Like(target any) Operator { return Operator{Target: target, Slug: conditions.Like} }

// Regexp wraps target with the regexp slug.
func Regexp(target any) Operator { return Operator{Target: target, Slug: conditions.Regexp} }

// Not negates the comparison built for target.
func Not(target any) Operator { return Operator{Target: target, Slug: SlugNot} }

// Asc orders by target ascending.
func Asc(target any) Operator { return Operator{Target: target, Slug: SlugAsc} }

// Desc orders by target descending.
func Desc(target any) Operator { return Operator{Target: target, Slug: SlugDesc} }

// Direction is one resolved order entry.
type Direction struct {
	Property   *model.Property
	Descending bool
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	return Direction{Property: d.Property, Descending: !d.Descending}
}

func (d Direction) String() string {
	if d.Descending {
		return d.Property.Name() + " DESC"
	}
	return d.Property.Name() + " ASC"
}

// Path references a subject through a chain of relationships, e.g.
// author.name from Article.
type Path struct {
	model         *model.Model
	relationships []*model.Relationship
	subject       model.Subject
}

// NewPath resolves names from m: every name but the last is a
// relationship, the last is a property or relationship of the model
// reached so far.
func NewPath(m *model.Model, names ...string) (*Path, error) {
	if len(names) == 0 {
		return nil, optionError("path", "path on %s needs at least one name", m)
	}
	p := &Path{model: m}
	cur := m
	for _, name := range names[:len(names)-1] {
		rel, ok := cur.Relationship(name)
		if !ok {
			return nil, newError(ErrCodeUnknownRelationship, strings.Join(names, "."), nil,
				"%q is not a relationship of %s", name, cur)
		}
		p.relationships = append(p.relationships, rel)
		cur = rel.Target()
	}
	last := names[len(names)-1]
	if prop, ok := cur.Property(last); ok {
		p.subject = prop
	} else if rel, ok := cur.Relationship(last); ok {
		p.subject = rel
	} else {
		return nil, newError(ErrCodeUnknownProperty, strings.Join(names, "."), nil,
			"%q is not a property or relationship of %s", last, cur)
	}
	return p, nil
}

// Model returns the model the path starts from.
func (p *Path) Model() *model.Model { return p.model }

// Relationships returns the traversed relationships.
func (p *Path) Relationships() []*model.Relationship {
	return append([]*model.Relationship(nil), p.relationships...)
}

// Subject returns the property or relationship at the end of the path.
func (p *Path) Subject() model.Subject { return p.subject }

// Operator wraps p with slug.
func (p *Path) Operator(slug conditions.Slug) Operator {
	return Operator{Target: p, Slug: slug}
}

func (p *Path) String() string {
	names := make([]string, 0, len(p.relationships)+1)
	for _, rel := range p.relationships {
		names = append(names, rel.Name())
	}
	return strings.Join(append(names, p.subject.Name()), ".")
}

func targetName(target any) string {
	switch t := target.(type) {
	case string:
		return t
	case model.Subject:
		return t.Name()
	case *Path:
		return t.String()
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprintf("%v", target)
}
