package query

import (
	"context"
	"testing"

	"github.com/roach88/relq/internal/model"
	"github.com/roach88/relq/internal/testutil"
	"github.com/stretchr/testify/require"
)

// fakeRepository reads records held in memory through FilterRecords.
type fakeRepository struct {
	name   string
	tables map[*model.Model][]model.Record
}

func newFakeRepository(name string, blog *testutil.Blog) *fakeRepository {
	return &fakeRepository{
		name: name,
		tables: map[*model.Model][]model.Record{
			blog.User:    testutil.Users(),
			blog.Article: testutil.Articles(),
		},
	}
}

func (r *fakeRepository) Name() string { return r.name }

func (r *fakeRepository) Read(ctx context.Context, q *Query) ([]model.Record, error) {
	return q.FilterRecordsContext(ctx, r.tables[q.Model()])
}

type env struct {
	blog *testutil.Blog
	repo *fakeRepository
}

func newEnv(t *testing.T) env {
	blog := testutil.NewBlog(t)
	return env{blog: blog, repo: newFakeRepository("default", blog)}
}

func (e env) users(t *testing.T, opts Options) *Query {
	t.Helper()
	q, err := New(e.repo, e.blog.User, opts)
	require.NoError(t, err)
	return q
}

func (e env) articles(t *testing.T, opts Options) *Query {
	t.Helper()
	q, err := New(e.repo, e.blog.Article, opts)
	require.NoError(t, err)
	return q
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := ErrorCodeOf(err)
	require.True(t, ok, "not a query error: %v", err)
	require.Equal(t, code, got, err.Error())
}
