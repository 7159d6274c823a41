package query

import (
	"regexp"
	"testing"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	e := newEnv(t)
	q := e.users(t, nil)

	var names []string
	for _, p := range q.Fields() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"id", "name", "age", "email", "referrer_id"}, names, "lazy bio is not selected")
	assert.Empty(t, q.Links())
	assert.Equal(t, 0, q.Offset())
	_, bounded := q.Limit()
	assert.False(t, bounded)
	require.Len(t, q.Order(), 1)
	assert.Equal(t, "id ASC", q.Order()[0].String())
	assert.False(t, q.Unique())
	assert.True(t, q.Conditions().Empty())
	assert.True(t, q.Valid())
}

func TestNew_InvalidOptions(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		opts Options
		code ErrorCode
	}{
		{"empty fields", Options{KeyFields: []any{}}, ErrCodeInvalidOption},
		{"fields not a list", Options{KeyFields: "name"}, ErrCodeInvalidOption},
		{"unknown field", Options{KeyFields: []string{"nope"}}, ErrCodeUnknownProperty},
		{"empty order", Options{KeyOrder: []any{}}, ErrCodeInvalidOption},
		{"unknown order", Options{KeyOrder: []string{"nope.desc"}}, ErrCodeUnknownProperty},
		{"negative offset", Options{KeyOffset: -1, KeyLimit: 1}, ErrCodeInvalidOption},
		{"negative limit", Options{KeyLimit: -1}, ErrCodeInvalidOption},
		{"offset without limit", Options{KeyOffset: 1}, ErrCodeInvalidOption},
		{"unique not bool", Options{KeyUnique: "yes"}, ErrCodeInvalidOption},
		{"reload not bool", Options{KeyReload: 1}, ErrCodeInvalidOption},
		{"empty links", Options{KeyLinks: []any{}}, ErrCodeInvalidOption},
		{"unknown link", Options{KeyLinks: []string{"comments"}}, ErrCodeUnknownRelationship},
		{"unknown condition", Options{"nope": 1}, ErrCodeUnknownProperty},
		{"unknown path", Options{"comments.body": 1}, ErrCodeUnknownRelationship},
		{"bad typecast", Options{"age.gt": "old"}, ErrCodeInvalidCondition},
		{"unsupported key", Options{42: 1}, ErrCodeUnsupportedKey},
		{"blank raw", Options{KeyConditions: []any{"  "}}, ErrCodeInvalidCondition},
		{"order slug as condition", Options{"name.desc": "x"}, ErrCodeInvalidCondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(e.repo, e.blog.User, tt.opts)
			requireCode(t, err, tt.code)
			assert.True(t, IsArgumentError(err))
			assert.False(t, IsRangeError(err))
		})
	}
}

func TestNew_OffsetWithoutLimitMessage(t *testing.T) {
	e := newEnv(t)
	_, err := New(e.repo, e.blog.User, Options{KeyOffset: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 5 requires a limit")
}

func TestNew_ImplicitConditions(t *testing.T) {
	e := newEnv(t)
	name := testutil.Property(t, e.blog.User, "name")
	age := testutil.Property(t, e.blog.User, "age")

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"bare name is eql", Options{"name": "Dan Kubb"}, "name = 'Dan Kubb'"},
		{"list is in", Options{"age": []int{25, 30}}, "age IN [25, 30]"},
		{"range is in", Options{"age": conditions.NewRange(20, 30)}, "age IN [20, 30]"},
		{"pattern is regexp", Options{"name": regexp.MustCompile("^D")}, "name =~ /^D/"},
		{"dotted slug", Options{"age.gte": 21}, "age >= 21"},
		{"operator key", Options{Gte(age): 21}, "age >= 21"},
		{"operator on name", Options{Like("name"): "D%"}, "name LIKE 'D%'"},
		{"property key", Options{name: "Sam"}, "name = 'Sam'"},
		{"not", Options{"name.not": "Sam"}, "NOT(name = 'Sam')"},
		{"not operator", Options{Not(name): nil}, "NOT(name = NULL)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := e.users(t, tt.opts)
			assert.Equal(t, tt.want, conditions.Minimize(q.Conditions()).String())
		})
	}
}

func TestNew_ConditionOrderIsDeterministic(t *testing.T) {
	e := newEnv(t)
	want := e.users(t, Options{"name": "Sam", "age.gt": 20, "email": nil}).Conditions().String()
	for i := 0; i < 20; i++ {
		got := e.users(t, Options{"email": nil, "name": "Sam", "age.gt": 20}).Conditions().String()
		require.Equal(t, want, got)
	}
	assert.Equal(t, "age > 20 AND email = NULL AND name = 'Sam'", want)
}

func TestNew_PathAddsLinks(t *testing.T) {
	e := newEnv(t)
	q := e.articles(t, Options{"author.name": "Sam"})

	require.Len(t, q.Links(), 1)
	assert.Equal(t, "author", q.Links()[0].Name())
	assert.True(t, q.Unique(), "linked queries are unique by default")
	assert.Equal(t, "author.name = 'Sam'", conditions.Minimize(q.Conditions()).String())

	path, err := NewPath(e.blog.Article, "author", "name")
	require.NoError(t, err)
	byPath := e.articles(t, Options{path.Operator(conditions.Eql): "Sam"})
	assert.True(t, q.Equal(byPath))

	explicit := e.articles(t, Options{"author.name.like": "S%", KeyUnique: false})
	assert.False(t, explicit.Unique())
}

func TestNew_NodeConditionsAddLinks(t *testing.T) {
	e := newEnv(t)
	path, err := NewPath(e.blog.Article, "author", "age")
	require.NoError(t, err)
	c, err := conditions.NewPathComparison(conditions.Gt, path.Relationships(), path.Subject(), 20)
	require.NoError(t, err)

	q := e.articles(t, Options{KeyConditions: c})
	require.Len(t, q.Links(), 1)
	assert.Nil(t, c.Parent(), "the caller's node is cloned, not adopted")
}

func TestNew_RawConditions(t *testing.T) {
	e := newEnv(t)
	q := e.users(t, Options{KeyConditions: []any{"age > ?", 20}, "name": "Sam"})

	ops := q.Conditions().Operands()
	require.Len(t, ops, 2)
	raw, ok := ops[0].(*conditions.RawCondition)
	require.True(t, ok)
	assert.Equal(t, "age > ?", raw.SQL())
	assert.Equal(t, []any{20}, raw.Bindings())
}

func TestNew_NestedConditionMap(t *testing.T) {
	e := newEnv(t)
	nested := e.users(t, Options{KeyConditions: map[string]any{"name": "Sam", "age.lt": 40}})
	flat := e.users(t, Options{"age.lt": 40, "name": "Sam"})
	assert.True(t, nested.Equal(flat))
}

func TestNew_RelationshipConditions(t *testing.T) {
	e := newEnv(t)

	q := e.articles(t, Options{"author": nil})
	assert.Equal(t, "author = NULL", conditions.Minimize(q.Conditions()).String())

	q = e.articles(t, Options{"author": []any{1, 2}})
	assert.Equal(t, "author IN [1, 2]", conditions.Minimize(q.Conditions()).String())

	sams := e.users(t, Options{"name": "Sam"})
	q = e.articles(t, Options{"author": sams})
	c := q.Conditions().Operands()[0].(*conditions.Comparison)
	require.NotNil(t, c.Subquery())

	sub := c.Subquery().(*Query)
	require.Len(t, sub.Fields(), 1)
	assert.Equal(t, "id", sub.Fields()[0].Name(), "subqueries select the target key")
	assert.Len(t, sams.Fields(), 5, "the caller's query is not narrowed")
}

func TestNew_SubqueryRejections(t *testing.T) {
	e := newEnv(t)
	sams := e.users(t, Options{"name": "Sam"})

	_, err := New(e.repo, e.blog.User, Options{"name": sams})
	requireCode(t, err, ErrCodeInvalidCondition)

	other, err := New(newFakeRepository("archive", e.blog), e.blog.User, nil)
	require.NoError(t, err)
	_, err = New(e.repo, e.blog.Article, Options{"author": other})
	requireCode(t, err, ErrCodeIncompatibleQuery)

	articles := e.articles(t, nil)
	_, err = New(e.repo, e.blog.Article, Options{"author": articles})
	requireCode(t, err, ErrCodeInvalidCondition)
}

func TestNew_OrderForms(t *testing.T) {
	e := newEnv(t)
	age := testutil.Property(t, e.blog.User, "age")

	q := e.users(t, Options{KeyOrder: []any{"name.desc", Asc(age), "id", Direction{Property: age, Descending: true}}})
	var got []string
	for _, d := range q.Order() {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"name DESC", "age ASC", "id ASC"}, got, "repeated properties keep their first direction")

	_, err := New(e.repo, e.blog.User, Options{KeyOrder: []any{Gt("age")}})
	requireCode(t, err, ErrCodeInvalidOption)
}

func TestNew_InheritedModel(t *testing.T) {
	blog := testutil.NewBlog(t)
	repo := newFakeRepository("default", blog)
	name := testutil.Property(t, blog.Person, "name")

	q, err := New(repo, blog.Employee, Options{name: "Ann", "salary.gt": 10})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Conditions().Len())
}

func TestOptions_RoundTrip(t *testing.T) {
	e := newEnv(t)
	tests := []Options{
		nil,
		{"name": "Sam"},
		{KeyLimit: 3, KeyOffset: 2, KeyOrder: []string{"age.desc"}},
		{"author.name": "Sam"},
		{KeyFields: []string{"title"}, KeyUnique: true, KeyReload: true, KeyAddReversed: true},
		{KeyConditions: []any{"1 = ?", 1}},
	}
	for _, opts := range tests {
		q := e.articles(t, nil)
		if len(opts) > 0 {
			var err error
			q, err = New(e.repo, e.blog.Article, rewriteUserKeys(opts))
			require.NoError(t, err)
		}
		again, err := New(q.Repository(), q.Model(), q.Options())
		require.NoError(t, err)
		assert.True(t, q.Equal(again), "%s\n%s", q, again)

		twice, err := New(again.Repository(), again.Model(), again.Options())
		require.NoError(t, err)
		assert.Equal(t, again.Key(), twice.Key())
	}
}

// rewriteUserKeys maps user-only keys onto article properties so one table
// serves TestOptions_RoundTrip.
func rewriteUserKeys(opts Options) Options {
	out := opts.Clone()
	if v, ok := out["name"]; ok {
		delete(out, "name")
		out["title"] = v
	}
	if v, ok := out[KeyOrder]; ok && v != nil {
		out[KeyOrder] = []string{"title.desc"}
	}
	return out
}

func TestQuery_String(t *testing.T) {
	e := newEnv(t)
	q := e.users(t, Options{"name": "Sam", KeyLimit: 1, KeyFields: []string{"id", "name"}})
	assert.Equal(t,
		"query(repository=default model=User fields=[id, name] links=[] conditions=(name = 'Sam') order=[id ASC] offset=0 limit=1 unique=false add_reversed=false reload=false)",
		q.String())
}

func TestQuery_CopyIsIndependent(t *testing.T) {
	e := newEnv(t)
	q := e.users(t, Options{"name": "Sam"})
	cp := q.Copy()
	require.NoError(t, cp.Conditions().Add(conditions.NewNot(conditions.NewNull())))
	assert.Equal(t, 1, q.Conditions().Len())
	assert.False(t, q.Equal(cp))
}
