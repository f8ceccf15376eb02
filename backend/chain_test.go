package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_RequiresTiers(t *testing.T) {
	assert.Panics(t, func() { NewChain() })
}

func TestChain_Name(t *testing.T) {
	c := NewChain(NewMemory(), NewMemory())
	assert.Equal(t, "chain(memory,memory)", c.Name())
}

func TestChain_GetBackfillsFasterTiers(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, slow.Put(ctx, "k", []byte("from slow"), false))
	require.Equal(t, 0, fast.Len())

	data, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("from slow"), data)

	// The hit got promoted into the fast tier.
	promoted, ok := fast.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("from slow"), promoted)
}

func TestChain_GetPrefersFastTier(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, fast.Put(ctx, "k", []byte("fast wins"), false))
	require.NoError(t, slow.Put(ctx, "k", []byte("slow loses"), false))

	data, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("fast wins"), data)
}

func TestChain_PutWritesThrough(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), false))
	assert.Equal(t, 1, fast.Len())
	assert.Equal(t, 1, slow.Len())
}

func TestChain_ProbablyExistsAnyTier(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, slow.Put(ctx, "deep", []byte("v"), false))

	assert.True(t, c.ProbablyExists(ctx, "deep"))
	assert.False(t, c.ProbablyExists(ctx, "nowhere"))
}

func TestChain_ProbablyExistsBatchCombinesTiers(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, fast.Put(ctx, "a", []byte("1"), false))
	require.NoError(t, slow.Put(ctx, "c", []byte("3"), false))

	bm := c.ProbablyExistsBatch(ctx, []string{"a", "b", "c"})
	assert.True(t, bm.Contains(0))
	assert.False(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))
}

func TestChain_TryToPrefetchPromotes(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, slow.Put(ctx, "p1", []byte("one"), false))
	require.NoError(t, slow.Put(ctx, "p2", []byte("two"), false))

	assert.True(t, c.TryToPrefetch(ctx, []string{"p1", "p2"}))
	assert.Equal(t, 2, fast.Len())

	// A key no tier has makes prefetch incomplete.
	assert.False(t, c.TryToPrefetch(ctx, []string{"p1", "ghost"}))
}

func TestChain_RemoveAndMarkTransientReachAllTiers(t *testing.T) {
	fast := NewMemory()
	slow := NewMemory()
	c := NewChain(fast, slow)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "temp", []byte("v"), false))
	c.MarkTransient(ctx, "temp")

	require.NoError(t, c.Remove(ctx, "temp", true))
	assert.False(t, fast.ProbablyExists(ctx, "temp"))
	assert.False(t, slow.ProbablyExists(ctx, "temp"))
}
