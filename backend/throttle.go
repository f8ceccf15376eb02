package backend

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/time/rate"
)

// Throttled wraps a tier and applies a byte-rate budget to its data path.
// Shared remote tiers are polite neighbors: a cold-cache burst from one
// process must not saturate the link for everyone else.
//
// Existence probes and transient marking are metadata-sized and bypass the
// limiter.
type Throttled struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewThrottled wraps inner with a byte-per-second budget.
// bytesPerSec also serves as the burst size.
func NewThrottled(inner Backend, bytesPerSec int64) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)),
	}
}

// Name implements Backend.
func (t *Throttled) Name() string { return t.inner.Name() + "+throttle" }

// waitBytes charges n bytes against the budget, splitting requests larger
// than the burst so they are legal for the limiter.
func (t *Throttled) waitBytes(ctx context.Context, n int) {
	burst := t.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := t.limiter.WaitN(ctx, chunk); err != nil {
			return
		}
		n -= chunk
	}
}

// Get implements Backend. The payload size is unknown until the read
// completes, so the charge happens after the fact; sustained throughput
// still converges on the budget.
func (t *Throttled) Get(ctx context.Context, key string) ([]byte, bool) {
	data, ok := t.inner.Get(ctx, key)
	if ok {
		t.waitBytes(ctx, len(data))
	}
	return data, ok
}

// Put implements Backend.
func (t *Throttled) Put(ctx context.Context, key string, data []byte, overwrite bool) error {
	t.waitBytes(ctx, len(data))
	return t.inner.Put(ctx, key, data, overwrite)
}

// Remove implements Backend.
func (t *Throttled) Remove(ctx context.Context, key string, transientOnly bool) error {
	return t.inner.Remove(ctx, key, transientOnly)
}

// MarkTransient implements Backend.
func (t *Throttled) MarkTransient(ctx context.Context, key string) {
	t.inner.MarkTransient(ctx, key)
}

// ProbablyExists implements Backend.
func (t *Throttled) ProbablyExists(ctx context.Context, key string) bool {
	return t.inner.ProbablyExists(ctx, key)
}

// ProbablyExistsBatch implements Backend.
func (t *Throttled) ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	return t.inner.ProbablyExistsBatch(ctx, keys)
}

// TryToPrefetch implements Backend.
func (t *Throttled) TryToPrefetch(ctx context.Context, keys []string) bool {
	return t.inner.TryToPrefetch(ctx, keys)
}
