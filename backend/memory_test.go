package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetPut(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "k1", []byte("v1"), false))
	data, ok := m.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_PutNoOverwrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("first"), false))
	require.NoError(t, m.Put(ctx, "k", []byte("second"), false))

	data, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("first"), data)

	require.NoError(t, m.Put(ctx, "k", []byte("second"), true))
	data, _ = m.Get(ctx, "k")
	assert.Equal(t, []byte("second"), data)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("pristine"), false))

	data, _ := m.Get(ctx, "k")
	data[0] = 'X'

	again, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("pristine"), again)
}

func TestMemory_TransientRemove(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "stay", []byte("a"), false))
	require.NoError(t, m.Put(ctx, "go", []byte("b"), false))
	m.MarkTransient(ctx, "go")

	require.NoError(t, m.Remove(ctx, "stay", true))
	require.NoError(t, m.Remove(ctx, "go", true))

	assert.True(t, m.ProbablyExists(ctx, "stay"))
	assert.False(t, m.ProbablyExists(ctx, "go"))

	// Unconditional removal ignores the transient mark.
	require.NoError(t, m.Remove(ctx, "stay", false))
	assert.False(t, m.ProbablyExists(ctx, "stay"))
}

func TestMemory_ProbablyExistsBatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "a", []byte("1"), false))
	require.NoError(t, m.Put(ctx, "c", []byte("3"), false))

	bm := m.ProbablyExistsBatch(ctx, []string{"a", "b", "c", "d"})
	assert.True(t, bm.Contains(0))
	assert.False(t, bm.Contains(1))
	assert.True(t, bm.Contains(2))
	assert.False(t, bm.Contains(3))
	assert.Equal(t, uint64(2), bm.GetCardinality())
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			key := []string{"a", "b", "c", "d"}[g%4]
			for i := 0; i < 200; i++ {
				_ = m.Put(ctx, key, []byte("v"), true)
				_, _ = m.Get(ctx, key)
				_ = m.ProbablyExists(ctx, key)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	assert.Equal(t, 4, m.Len())
}
