package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStoreWithClient(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	entry := &Entry{
		QueryHash: HashQuery("hello world"),
		QueryText: "hello world",
		Response:  "hi there",
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Set(ctx, entry.QueryHash, entry))

	got, err := store.Get(ctx, entry.QueryHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi there", got.Response)

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello world", entries[0].QueryText)

	require.NoError(t, store.Delete(ctx, entry.QueryHash))
	got, err = store.Get(ctx, entry.QueryHash)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreMissIsNilNotError(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	got, err := store.Get(ctx, "deadbeefdeadbeef")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreClear(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	for _, text := range []string{"one", "two", "three"} {
		e := &Entry{QueryHash: HashQuery(text), QueryText: text, ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, store.Set(ctx, e.QueryHash, e))
	}

	require.NoError(t, store.Clear(ctx))
	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	e := &Entry{
		QueryHash: HashQuery("ephemeral"),
		QueryText: "ephemeral",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, store.Set(ctx, e.QueryHash, e))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, e.QueryHash)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSemanticOverRedis(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	c := NewSemantic(store, SemanticConfig{}, zap.NewNop())

	c.Put(ctx, "Explain quantum computing", "cached", "openai", "gpt-4o-mini", 0.001, 120, 0)

	m := c.Lookup(ctx, "explain quantum computing.")
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.Similarity, 0.82)
	assert.Equal(t, "cached", m.Entry.Response)
}
