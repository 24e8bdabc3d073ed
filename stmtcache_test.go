package ormion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	db, err := Open(context.Background(), "sqlite3", ":memory:",
		WithPool(DBConfig{MaxOpenConns: 1}), WithStatementCache(capacity))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL().Exec(testSchema)
	require.NoError(t, err)

	pages, err := Define[*testPage](db, "", pagesConfig())
	require.NoError(t, err)
	return &fixture{db: db, pages: pages}
}

func TestStatementCache_ReusesStatements(t *testing.T) {
	f := newCachedFixture(t, 10)
	ctx := context.Background()
	cache := f.db.StatementCache()
	require.NotNil(t, cache)

	for range 3 {
		p, ok, err := f.pages.Find(ctx, int64(2))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Article", p.Get("name"))
	}
	assert.Equal(t, 1, cache.Len())

	p, err := f.pages.Create(map[string]any{"name": "Cached"})
	require.NoError(t, err)
	require.NoError(t, f.pages.Save(ctx, p))
	assert.Equal(t, 2, cache.Len())
}

func TestStatementCache_EvictsLeastRecentlyUsed(t *testing.T) {
	f := newCachedFixture(t, 2)
	ctx := context.Background()
	cache := f.db.StatementCache()

	for i := 1; i <= 4; i++ {
		_, err := f.db.Query(ctx, fmt.Sprintf("SELECT name FROM pages WHERE id = %d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())

	// evicted statements are prepared again on demand
	res, err := f.db.Query(ctx, "SELECT name FROM pages WHERE id = 1")
	require.NoError(t, err)
	v, ok := res.FetchSingle()
	require.True(t, ok)
	assert.Equal(t, "Clanek", v)
	assert.Equal(t, 2, cache.Len())
}

func TestStatementCache_ConcurrentUse(t *testing.T) {
	f := newCachedFixture(t, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.db.Query(ctx, fmt.Sprintf("SELECT name FROM pages WHERE id = %d", i%4+1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, f.db.StatementCache().Len(), 2)
}

func TestStatementCache_TransactionsBypassCache(t *testing.T) {
	f := newCachedFixture(t, 10)
	ctx := context.Background()

	err := f.db.Transaction(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, "UPDATE pages SET visits = visits + 1 WHERE id = ?", 1)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, f.db.StatementCache().Len())
}

func TestStatementCache_Clear(t *testing.T) {
	f := newCachedFixture(t, 10)
	cache := f.db.StatementCache()

	_, err := f.db.Query(context.Background(), "SELECT COUNT(*) FROM pages")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Zero(t, cache.Len())

	_, err = f.db.Query(context.Background(), "SELECT COUNT(*) FROM pages")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestNewStatementCache_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 100, NewStatementCache(0).capacity)
	assert.Equal(t, 5, NewStatementCache(5).capacity)
}
