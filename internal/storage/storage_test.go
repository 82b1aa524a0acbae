package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *Session {
	p := model.NewPartition("Shoes", "Socks")
	p.Assign("Shoes", 1)
	p.Assign("Socks", 2)

	return &Session{
		ID:          "sess-1",
		ShopURL:     "https://example.myshopify.com",
		AccessToken: "shpat_secret",
		Tag:         "sale",
		TaskID:      "task-1",
		Products: []model.Product{
			{ID: 1000, Title: "Running Shoes"},
			{ID: 1001, Title: "Wool Socks"},
		},
		Taxonomy:  []string{"Shoes", "Socks"},
		ParentMap: model.ParentMap{"Running": "Shoes"},
		Partition: p,
	}
}

// storeUnderTest runs the shared SessionStore contract against an
// implementation.
func storeUnderTest(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	session := sampleSession()
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.ShopURL, got.ShopURL)
	assert.Equal(t, session.AccessToken, got.AccessToken)
	assert.Equal(t, session.Tag, got.Tag)
	assert.Equal(t, session.TaskID, got.TaskID)
	assert.Equal(t, session.Products, got.Products)
	assert.Equal(t, session.Taxonomy, got.Taxonomy)
	assert.Equal(t, session.ParentMap, got.ParentMap)
	require.NotNil(t, got.Partition)
	assert.Equal(t, []string{"Shoes", "Socks"}, got.Partition.Names())
	assert.Equal(t, []int{1}, got.Partition.Indices("Shoes"))
	assert.False(t, got.UpdatedAt.IsZero())

	// Updates replace prior state.
	got.Tag = "clearance"
	require.NoError(t, store.Save(ctx, got))
	updated, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "clearance", updated.Tag)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "sess-1"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	storeUnderTest(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()
	storeUnderTest(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleSession()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret", got.AccessToken)
	require.NotNil(t, got.Partition)
	assert.Equal(t, 2, got.Partition.Total())
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStoreWithTTL(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession()))
	time.Sleep(20 * time.Millisecond)

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// The sweep on the next write drops the expired entry entirely.
	other := sampleSession()
	other.ID = "sess-2"
	require.NoError(t, store.Save(ctx, other))

	store.mu.RLock()
	_, stillThere := store.sessions["sess-1"]
	store.mu.RUnlock()
	assert.False(t, stillThere)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession()))
	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)

	got.Tag = "mutated"
	again, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sale", again.Tag)
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
