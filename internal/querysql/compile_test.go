package querysql

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/testutil"
)

type stubRepository struct{}

func (stubRepository) Name() string { return "default" }

func (stubRepository) Read(context.Context, *query.Query) ([]model.Record, error) {
	return nil, nil
}

func newQuery(t *testing.T, m *model.Model, opts query.Options) *query.Query {
	t.Helper()
	q, err := query.New(stubRepository{}, m, opts)
	require.NoError(t, err)
	return q
}

func assertGolden(t *testing.T, name, sql string, params []any) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(fmt.Sprintf("%s\n%v\n", sql, params)))
}

func TestCompile_Golden(t *testing.T) {
	blog := testutil.NewBlog(t)
	young := newQuery(t, blog.User, query.Options{"age.lt": 26})
	limited := newQuery(t, blog.User, query.Options{query.KeyLimit: 5})
	dan := newQuery(t, blog.User, query.Options{"name": "Dan Kubb"})
	limitedWithoutDan, err := limited.Difference(dan)
	require.NoError(t, err)
	nothing, err := dan.Difference(newQuery(t, blog.User, nil))
	require.NoError(t, err)

	tests := []struct {
		name string
		q    *query.Query
	}{
		{"users_all", newQuery(t, blog.User, nil)},
		{"users_window", newQuery(t, blog.User, query.Options{
			"name": "Sam", "age.gte": 21,
			query.KeyLimit: 3, query.KeyOffset: 1, query.KeyOrder: []string{"name.desc"},
		})},
		{"users_in_with_nil", newQuery(t, blog.User, query.Options{"age": []any{25, nil, 30}, "email.not": nil})},
		{"users_patterns", newQuery(t, blog.User, query.Options{
			"age":        conditions.NewRange(20, 30),
			"email.like": "%@x.io",
			"name":       regexp.MustCompile(`^D`),
		})},
		{"users_add_reversed", newQuery(t, blog.User, query.Options{query.KeyOrder: []string{"age"}, query.KeyAddReversed: true})},
		{"users_raw", newQuery(t, blog.User, query.Options{query.KeyConditions: []any{"age > ? OR age IS NULL", 20}})},
		{"users_nothing", nothing},
		{"users_limited_difference", limitedWithoutDan},
		{"articles_path", newQuery(t, blog.Article, query.Options{"author.name": "Sam"})},
		{"articles_author_keys", newQuery(t, blog.Article, query.Options{"author": []any{1, 2}})},
		{"articles_author_nil", newQuery(t, blog.Article, query.Options{"author": nil})},
		{"articles_author_subquery", newQuery(t, blog.Article, query.Options{"author": young})},
	}
	compiler := NewCompiler(SQLite)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compiler.Compile(tt.q)
			require.NoError(t, err)
			assertGolden(t, tt.name, sql, params)
		})
	}
}

func TestCompile_PostgresGolden(t *testing.T) {
	blog := testutil.NewBlog(t)
	tests := []struct {
		name string
		q    *query.Query
	}{
		{"pg_users_window", newQuery(t, blog.User, query.Options{
			"name": "Sam", "age.gte": 21,
			query.KeyLimit: 3, query.KeyOffset: 1, query.KeyOrder: []string{"name.desc"},
		})},
		{"pg_users_regexp", newQuery(t, blog.User, query.Options{"name.regexp": "^D"})},
	}
	compiler := NewCompiler(Postgres)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compiler.Compile(tt.q)
			require.NoError(t, err)
			assertGolden(t, tt.name, sql, params)
		})
	}
}

func TestCompile_ValuesAreParameterized(t *testing.T) {
	blog := testutil.NewBlog(t)
	q := newQuery(t, blog.User, query.Options{"name": "Robert'); DROP TABLE users;--"})

	sql, params, err := NewCompiler(SQLite).Compile(q)
	require.NoError(t, err)
	assert.NotContains(t, sql, "Robert")
	assert.Equal(t, []any{"Robert'); DROP TABLE users;--"}, params)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	blog := testutil.NewBlog(t)
	for _, opts := range []query.Options{
		nil,
		{"name": "Sam"},
		{query.KeyOrder: []string{"name"}},
		{"author.name": "Sam"},
	} {
		m := blog.User
		if _, ok := opts["author.name"]; ok {
			m = blog.Article
		}
		sql, _, err := NewCompiler(SQLite).Compile(newQuery(t, m, opts))
		require.NoError(t, err)
		assert.Contains(t, sql, "ORDER BY")
		assert.Contains(t, sql, "t0.id ASC", "the key breaks ties")
	}
}

func TestCompile_HasManyJoin(t *testing.T) {
	blog := testutil.NewBlog(t)
	q := newQuery(t, blog.User, query.Options{"articles.published": true})

	sql, params, err := NewCompiler(SQLite).Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT DISTINCT ")
	assert.Contains(t, sql, "INNER JOIN articles t1 ON t0.id = t1.author_id")
	assert.Contains(t, sql, "WHERE EXISTS (SELECT 1 FROM articles t2 WHERE t2.author_id = t0.id AND t2.published IS ?)")
	assert.Equal(t, []any{true}, params)

	q = newQuery(t, blog.User, query.Options{"articles.title.not": "Hello"})
	sql, _, err = NewCompiler(SQLite).Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE NOT (EXISTS (SELECT 1 FROM articles t2 WHERE t2.author_id = t0.id AND t2.title IS ?))")
}

func TestCompile_FieldAlias(t *testing.T) {
	m := model.New("Account", model.WithStorage("accounts"))
	_, err := m.AddProperty("id", model.Integer, model.AsKey())
	require.NoError(t, err)
	_, err = m.AddProperty("owner", model.String, model.WithField("owner name"))
	require.NoError(t, err)

	sql, _, err := NewCompiler(SQLite).Compile(newQuery(t, m, query.Options{"owner": "x"}))
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0.id, t0."owner name" AS owner FROM accounts t0 WHERE t0."owner name" IS ? ORDER BY t0.id ASC`, sql)
}

func TestCompileWhere(t *testing.T) {
	blog := testutil.NewBlog(t)
	c := NewCompiler(Postgres)

	sql, params, err := c.CompileWhere(newQuery(t, blog.User, nil))
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)
	assert.Empty(t, params)

	sql, params, err = c.CompileWhere(newQuery(t, blog.User, query.Options{"age.gt": 1, "name.in": []string{"a", "b"}}))
	require.NoError(t, err)
	assert.Equal(t, "t0.age > $1 AND t0.name IN ($2, $3)", sql)
	assert.Equal(t, []any{int64(1), "a", "b"}, params)
}

func TestParseDialect(t *testing.T) {
	for name, want := range map[string]Dialect{"sqlite3": SQLite, "sqlite": SQLite, "postgres": Postgres, "pq": Postgres} {
		got, err := ParseDialect(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}
