package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/config"
)

func TestNew_Drivers(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	c, err = New(config.CacheConfig{Driver: "memory", MaxEntries: 2})
	require.NoError(t, err)
	assert.IsType(t, &MemoryClient{}, c)
	require.NoError(t, c.Close())

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

func TestMemoryClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryClient_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// overwriting an existing key does not evict
	require.NoError(t, c.Set(ctx, "new", []byte("4"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "page:abc:1", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "page:abc:2", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "page:def:1", []byte("3"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "page:abc:"))
	assert.Equal(t, 1, c.Len())
}

func TestPageKey(t *testing.T) {
	base := PageKey("sum", 1, "m", "instr")
	assert.Equal(t, base, PageKey("sum", 1, "m", "instr"))
	assert.NotEqual(t, base, PageKey("sum", 2, "m", "instr"))
	assert.NotEqual(t, base, PageKey("sum", 1, "other", "instr"))
	assert.NotEqual(t, base, PageKey("sum", 1, "m", "changed"))
	assert.Contains(t, base, "page:sum:")
}

func TestPageCache_RoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryClient(10)
	defer mem.Close()
	pages := NewPageCache(mem, time.Hour, nil)

	key := PageKey("sum", 1, "m", "instr")
	_, ok := pages.Get(ctx, key)
	assert.False(t, ok)

	require.NoError(t, pages.Put(ctx, key, "slide text", "m"))
	got, ok := pages.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "slide text", got.Content)
	assert.Equal(t, "m", got.Model)

	require.NoError(t, pages.InvalidateDocument(ctx, "sum"))
	_, ok = pages.Get(ctx, key)
	assert.False(t, ok)
}

func TestPageCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryClient(10)
	defer mem.Close()
	require.NoError(t, mem.Set(ctx, "k", []byte("{not json"), time.Minute))

	_, ok := NewPageCache(mem, time.Minute, nil).Get(ctx, "k")
	assert.False(t, ok)
}
