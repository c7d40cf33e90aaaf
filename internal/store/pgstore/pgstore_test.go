package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/internal/database"
	"socialsync/internal/store"
	"socialsync/internal/store/pgstore"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL store tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available, skipping test: %v", err)
	}
	require.NoError(t, database.Migrate(db))

	_, err = db.Exec(`TRUNCATE documents`)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Exec(`TRUNCATE documents`)
		db.Close()
	})
	return db
}

func TestStore_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := pgstore.New(db)

	require.NoError(t, s.Set(ctx, "posts/p1", map[string]any{"text": "hello", "createdAt": 1700000000000}))
	require.NoError(t, s.Set(ctx, "posts/p1/likes/A", map[string]any{"username": "alice"}))

	var post map[string]any
	require.NoError(t, s.Get(ctx, "posts/p1", &post))
	assert.Equal(t, "hello", post["text"])

	require.NoError(t, s.Update(ctx, "posts/p1", map[string]any{"text": "edited", "meta/seen": true}))
	require.NoError(t, s.Get(ctx, "posts/p1", &post))
	assert.Equal(t, "edited", post["text"])
	assert.Equal(t, map[string]any{"seen": true}, post["meta"])

	require.NoError(t, s.Delete(ctx, "posts/p1"))
	ok, err := s.Exists(ctx, "posts/p1/likes/A")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Get(ctx, "posts/p1", &post), store.ErrNotFound)
}

func TestStore_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := pgstore.New(db)

	var keys []string
	for i := 0; i < 4; i++ {
		key, err := s.Push(ctx, "messages/A-B", map[string]any{"n": i})
		require.NoError(t, err)
		keys = append(keys, key)
	}

	asc, err := s.List(ctx, "messages/A-B", store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, asc, 4)
	for i, snap := range asc {
		assert.Equal(t, keys[i], snap.Key)
	}

	page, err := s.List(ctx, "messages/A-B", store.ListOptions{Limit: 2, Before: keys[3], Descending: true})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, keys[2], page[0].Key)
	assert.Equal(t, keys[1], page[1].Key)
}
