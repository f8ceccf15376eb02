package backend

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// chainFanout bounds concurrent backend requests during batched probes and
// prefetch, to avoid FD exhaustion and remote rate limits.
const chainFanout = 16

// Chain composes an ordered list of tiers into one Backend.
//
// Tiers are ordered fastest first. Get queries tiers in order; a hit in a
// slower tier is backfilled into every faster tier so repeat reads stay
// cheap. Put writes through to all tiers. Existence probes and prefetch fan
// out across tiers concurrently.
type Chain struct {
	tiers []Backend
}

// NewChain creates a chain over the given tiers, fastest first.
// At least one tier is required.
func NewChain(tiers ...Backend) *Chain {
	if len(tiers) == 0 {
		panic("cachego: backend chain needs at least one tier")
	}
	return &Chain{tiers: tiers}
}

// Name implements Backend.
func (c *Chain) Name() string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Get implements Backend.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, t := range c.tiers {
		data, ok := t.Get(ctx, key)
		if !ok {
			continue
		}
		// Backfill faster tiers. Best-effort: a failed fill costs a
		// future slow read, nothing else.
		for j := 0; j < i; j++ {
			_ = c.tiers[j].Put(ctx, key, data, false)
		}
		return data, true
	}
	return nil, false
}

// Put implements Backend. The record is written through to every tier; the
// first error is returned after all tiers have been attempted.
func (c *Chain) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	var firstErr error
	for _, t := range c.tiers {
		if err := t.Put(ctx, key, data, overwrite); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Remove implements Backend.
func (c *Chain) Remove(ctx context.Context, key string, transientOnly bool) error {
	var firstErr error
	for _, t := range c.tiers {
		if err := t.Remove(ctx, key, transientOnly); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MarkTransient implements Backend.
func (c *Chain) MarkTransient(ctx context.Context, key string) {
	for _, t := range c.tiers {
		t.MarkTransient(ctx, key)
	}
}

// ProbablyExists implements Backend.
func (c *Chain) ProbablyExists(ctx context.Context, key string) bool {
	for _, t := range c.tiers {
		if t.ProbablyExists(ctx, key) {
			return true
		}
	}
	return false
}

// ProbablyExistsBatch implements Backend. Tiers are probed concurrently and
// their answers are OR-combined.
func (c *Chain) ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	var (
		mu       sync.Mutex
		combined = roaring.New()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chainFanout)

	for _, t := range c.tiers {
		t := t
		g.Go(func() error {
			bm := t.ProbablyExistsBatch(gctx, keys)
			mu.Lock()
			combined.Or(bm)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return combined
}

// TryToPrefetch implements Backend. Keys missing from the fastest tier are
// pulled up from the first slower tier that has them. Returns true only if
// every key ended up available in the fastest tier.
func (c *Chain) TryToPrefetch(ctx context.Context, keys []string) bool {
	top := c.tiers[0]

	var missing atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chainFanout)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if top.ProbablyExists(gctx, key) {
				return nil
			}
			for _, t := range c.tiers[1:] {
				if data, ok := t.Get(gctx, key); ok {
					_ = top.Put(gctx, key, data, false)
					return nil
				}
			}
			missing.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return missing.Load() == 0
}
