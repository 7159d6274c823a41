package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/testutil"
)

// createTestSQL opens a SQLite repository in a temp dir loaded with the
// fixture users and articles.
func createTestSQL(t *testing.T, blog *testutil.Blog) *SQL {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open("default", querysql.SQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx, blog.Registry))
	require.NoError(t, s.Insert(ctx, blog.User, testutil.Users()...))
	require.NoError(t, s.Insert(ctx, blog.Article, testutil.Articles()...))
	return s
}

// createTestMemory returns a memory repository with the same records.
func createTestMemory(t *testing.T, blog *testutil.Blog) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory("default")
	require.NoError(t, m.Insert(ctx, blog.User, testutil.Users()...))
	require.NoError(t, m.Insert(ctx, blog.Article, testutil.Articles()...))
	return m
}

type namedRepository struct {
	name string
	repo query.Repository
}

// repositories returns both implementations over the same fixture data.
func repositories(t *testing.T, blog *testutil.Blog) []namedRepository {
	return []namedRepository{
		{"memory", createTestMemory(t, blog)},
		{"sqlite", createTestSQL(t, blog)},
	}
}
