package backend

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottled_PassesDataThrough(t *testing.T) {
	inner := NewMemory()
	th := NewThrottled(inner, 1<<30)
	ctx := context.Background()

	payload := []byte("payload")
	require.NoError(t, th.Put(ctx, "k", payload, false))

	data, ok := th.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, payload, data)

	_, ok = th.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestThrottled_DelaysLargeWrites(t *testing.T) {
	inner := NewMemory()
	th := NewThrottled(inner, 64*1024) // 64 KiB/s
	ctx := context.Background()

	// First put drains the initial burst allowance; the second must wait
	// for the budget to refill.
	require.NoError(t, th.Put(ctx, "warm", bytes.Repeat([]byte("x"), 64*1024), false))

	start := time.Now()
	require.NoError(t, th.Put(ctx, "k", bytes.Repeat([]byte("x"), 16*1024), false))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestThrottled_MetadataBypassesBudget(t *testing.T) {
	inner := NewMemory()
	th := NewThrottled(inner, 1) // effectively frozen data path
	ctx := context.Background()

	require.NoError(t, inner.Put(ctx, "k", []byte("v"), false))

	start := time.Now()
	assert.True(t, th.ProbablyExists(ctx, "k"))
	bm := th.ProbablyExistsBatch(ctx, []string{"k", "other"})
	assert.True(t, bm.Contains(0))
	th.MarkTransient(ctx, "k")
	require.NoError(t, th.Remove(ctx, "k", true))

	assert.Less(t, time.Since(start), time.Second, "metadata ops must not wait on the byte budget")
}

func TestThrottled_CanceledContextStopsWaiting(t *testing.T) {
	inner := NewMemory()
	th := NewThrottled(inner, 16) // 16 B/s
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_ = th.Put(ctx, "k", bytes.Repeat([]byte("x"), 1024), false)
	assert.Less(t, time.Since(start), 5*time.Second)
}
