package testutil

import (
	"testing"

	"github.com/roach88/relq/internal/model"
	"github.com/stretchr/testify/require"
)

// Blog is the fixture schema shared by package tests.
//
//	User     id*, name!, age, email, bio~, referrer_id   (users)
//	Article  id*, title!, author_id, published            (articles)
//	Person   id*, name                                    (people)
//	Employee < Person: salary
//
// * key, ! required, ~ lazy. User has many articles and belongs to a
// referrer; Article belongs to an author.
type Blog struct {
	Registry *model.Registry
	User     *model.Model
	Article  *model.Model
	Person   *model.Model
	Employee *model.Model
}

// NewBlog builds the fixture schema, failing t on error.
func NewBlog(t testing.TB) *Blog {
	t.Helper()
	b, err := BuildBlog()
	require.NoError(t, err)
	return b
}

// BuildBlog builds the fixture schema.
func BuildBlog() (*Blog, error) {
	b := &Blog{
		Registry: model.NewRegistry(),
		User:     model.New("User", model.WithStorage("users")),
		Article:  model.New("Article", model.WithStorage("articles")),
		Person:   model.New("Person", model.WithStorage("people")),
	}
	b.Employee = model.New("Employee", model.WithParent(b.Person))

	props := []struct {
		m    *model.Model
		name string
		prim model.Primitive
		opts []model.PropertyOption
	}{
		{b.User, "id", model.Integer, []model.PropertyOption{model.AsKey()}},
		{b.User, "name", model.String, []model.PropertyOption{model.AsRequired()}},
		{b.User, "age", model.Integer, nil},
		{b.User, "email", model.String, nil},
		{b.User, "bio", model.String, []model.PropertyOption{model.AsLazy()}},
		{b.User, "referrer_id", model.Integer, nil},
		{b.Article, "id", model.Integer, []model.PropertyOption{model.AsKey()}},
		{b.Article, "title", model.String, []model.PropertyOption{model.AsRequired()}},
		{b.Article, "author_id", model.Integer, nil},
		{b.Article, "published", model.Boolean, nil},
		{b.Person, "id", model.Integer, []model.PropertyOption{model.AsKey()}},
		{b.Person, "name", model.String, nil},
		{b.Employee, "salary", model.Integer, nil},
	}
	for _, p := range props {
		if _, err := p.m.AddProperty(p.name, p.prim, p.opts...); err != nil {
			return nil, err
		}
	}

	if _, err := b.User.HasMany("articles", b.Article, "author_id"); err != nil {
		return nil, err
	}
	if _, err := b.User.BelongsTo("referrer", b.User, "referrer_id"); err != nil {
		return nil, err
	}
	if _, err := b.Article.BelongsTo("author", b.User, "author_id"); err != nil {
		return nil, err
	}

	for _, m := range []*model.Model{b.User, b.Article, b.Person, b.Employee} {
		if err := b.Registry.Add(m); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Property returns the named property of m, failing t if it is missing.
func Property(t testing.TB, m *model.Model, name string) *model.Property {
	t.Helper()
	p, ok := m.Property(name)
	require.True(t, ok, "%s has no property %q", m.Name(), name)
	return p
}

// Relationship returns the named relationship of m, failing t if it is missing.
func Relationship(t testing.TB, m *model.Model, name string) *model.Relationship {
	t.Helper()
	r, ok := m.Relationship(name)
	require.True(t, ok, "%s has no relationship %q", m.Name(), name)
	return r
}
