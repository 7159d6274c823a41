package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBlog(t *testing.T) (*Model, *Model) {
	t.Helper()

	user := New("User", WithStorage("users"))
	_, err := user.AddProperty("id", Integer, AsKey())
	require.NoError(t, err)
	_, err = user.AddProperty("name", String, AsRequired())
	require.NoError(t, err)
	_, err = user.AddProperty("bio", String, AsLazy())
	require.NoError(t, err)

	article := New("Article")
	_, err = article.AddProperty("id", Integer, AsKey())
	require.NoError(t, err)
	_, err = article.AddProperty("title", String)
	require.NoError(t, err)
	_, err = article.AddProperty("author_id", Integer)
	require.NoError(t, err)

	_, err = article.BelongsTo("author", user, "author_id")
	require.NoError(t, err)
	_, err = user.HasMany("articles", article, "author_id")
	require.NoError(t, err)

	return user, article
}

func TestModelProperties(t *testing.T) {
	user, _ := buildBlog(t)

	props := user.Properties()
	require.Len(t, props, 3)
	assert.Equal(t, "id", props[0].Name())
	assert.Equal(t, "User.name", props[1].String())
	assert.True(t, props[2].IsLazy())

	key := user.Key()
	require.Len(t, key, 1)
	assert.Equal(t, "id", key[0].Name())
	assert.True(t, key[0].IsRequired())

	_, err := user.AddProperty("name", String)
	assert.ErrorIs(t, err, ErrDuplicateProperty)
}

func TestModelStorageName(t *testing.T) {
	user, article := buildBlog(t)
	assert.Equal(t, "users", user.StorageName())
	assert.Equal(t, "articles", article.StorageName())
}

func TestRelationshipKeys(t *testing.T) {
	user, article := buildBlog(t)

	author, ok := article.Relationship("author")
	require.True(t, ok)
	assert.Equal(t, ManyToOne, author.Cardinality())
	assert.Equal(t, "author_id", author.SourceKey()[0].Name())
	assert.Equal(t, "id", author.TargetKey()[0].Name())
	assert.Same(t, user, author.Target())

	articles, ok := user.Relationship("articles")
	require.True(t, ok)
	assert.Equal(t, "id", articles.SourceKey()[0].Name())
	assert.Equal(t, "author_id", articles.TargetKey()[0].Name())

	key, ok := author.SourceValues(Attributes{"id": 9, "author_id": "3"})
	require.True(t, ok)
	assert.Equal(t, Key{int64(3)}, key)

	_, ok = author.SourceValues(Attributes{"id": 9, "author_id": nil})
	assert.False(t, ok)
}

func TestRelationshipErrors(t *testing.T) {
	user, article := buildBlog(t)

	_, err := article.BelongsTo("editor", user, "editor_id")
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = article.BelongsTo("author", user, "author_id")
	assert.ErrorIs(t, err, ErrDuplicateRelationship)

	_, err = article.AddRelationship("pair", ManyToOne, user, []string{"id", "author_id"}, []string{"id"})
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestSelfRelationship(t *testing.T) {
	user, _ := buildBlog(t)

	self := user.SelfRelationship()
	assert.True(t, self.IsSelf())
	assert.Equal(t, "User.self", self.String())
	assert.Equal(t, user.Key(), self.SourceKey())
	assert.Equal(t, user.Key(), self.TargetKey())
}

func TestInheritance(t *testing.T) {
	person := New("Person", WithStorage("people"))
	_, err := person.AddProperty("id", Integer, AsKey())
	require.NoError(t, err)
	_, err = person.AddProperty("name", String)
	require.NoError(t, err)

	employee := New("Employee", WithParent(person))
	_, err = employee.AddProperty("salary", Integer)
	require.NoError(t, err)

	assert.Equal(t, "people", employee.StorageName())
	assert.Same(t, person, employee.Root())
	assert.True(t, employee.Descends(person))
	assert.False(t, person.Descends(employee))

	props := employee.Properties()
	require.Len(t, props, 3)
	assert.Equal(t, "Person.id", props[0].String())
	assert.Equal(t, "Employee.salary", props[2].String())

	name, ok := employee.Property("name")
	require.True(t, ok)
	assert.True(t, employee.HasProperty(name))
	assert.Len(t, employee.Key(), 1)

	_, err = employee.AddProperty("name", String)
	assert.ErrorIs(t, err, ErrDuplicateProperty)
}

func TestDefaultOrder(t *testing.T) {
	user, _ := buildBlog(t)

	order := user.DefaultOrder(DefaultRepository)
	require.Len(t, order, 1)
	assert.Equal(t, "id", order[0].Property.Name())
	assert.False(t, order[0].Descending)

	name, _ := user.Property("name")
	user.SetDefaultOrder("archive", OrderSpec{Property: name, Descending: true})
	order = user.DefaultOrder("archive")
	require.Len(t, order, 1)
	assert.Equal(t, "name", order[0].Property.Name())
	assert.True(t, order[0].Descending)

	// Unknown repositories fall back to the key order.
	assert.Equal(t, "id", user.DefaultOrder("other")[0].Property.Name())
}

func TestPropertyValid(t *testing.T) {
	user, _ := buildBlog(t)
	name, _ := user.Property("name")
	bio, _ := user.Property("bio")
	id, _ := user.Property("id")

	assert.False(t, name.Valid(nil, false), "required property rejects nil")
	assert.True(t, name.Valid(nil, true), "negated nil test is valid")
	assert.True(t, bio.Valid(nil, false))
	assert.True(t, id.Valid("12", false))
	assert.False(t, id.Valid("twelve", false))
}

func TestRegistry(t *testing.T) {
	user, article := buildBlog(t)

	reg := NewRegistry()
	require.NoError(t, reg.Add(user))
	require.NoError(t, reg.Add(article))
	assert.ErrorIs(t, reg.Add(user), ErrDuplicateModel)

	got, ok := reg.Get("Article")
	require.True(t, ok)
	assert.Same(t, article, got)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []*Model{user, article}, reg.Models())
}

func TestAsRecord(t *testing.T) {
	r, ok := AsRecord(map[string]any{"name": "Dan"})
	require.True(t, ok)
	v, ok := r.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, "Dan", v)

	_, ok = AsRecord(42)
	assert.False(t, ok)
}
