package backend

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Backend is the contract for one cache storage tier.
//
// Get reports a miss as (nil, false); I/O errors are treated as misses and
// are an implementation-internal concern. Put and Remove surface errors so
// callers can decide whether durability matters for them; the request engine
// treats a failed write-back as best-effort and swallows it.
//
// ProbablyExists may use cheap, racy checks. False positives are corrected
// at Get time and are acceptable; false negatives for data the tier actually
// holds are not.
type Backend interface {
	// Name identifies the tier in logs and stats.
	Name() string

	// Get returns the payload stored under key, or (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Put stores data under key. When overwrite is false an existing
	// record is left untouched.
	Put(ctx context.Context, key string, data []byte, overwrite bool) error

	// Remove deletes the record under key. When transientOnly is true,
	// only records previously passed to MarkTransient are removed.
	Remove(ctx context.Context, key string, transientOnly bool) error

	// MarkTransient flags key as safe to drop on a transient cleanup.
	MarkTransient(ctx context.Context, key string)

	// ProbablyExists reports whether key is likely present.
	ProbablyExists(ctx context.Context, key string) bool

	// ProbablyExistsBatch answers ProbablyExists for many keys at once.
	// Bit i of the result is set iff keys[i] probably exists.
	ProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap

	// TryToPrefetch hints that keys will be read soon. It returns true
	// only if all keys are now available from the fastest tier.
	TryToPrefetch(ctx context.Context, keys []string) bool
}

// TransientSet tracks keys marked transient within this process.
//
// Transient marking is a per-process hint, not durable tier state, so leaf
// tiers share this one implementation.
type TransientSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// Mark flags key as transient.
func (s *TransientSet) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	s.keys[key] = struct{}{}
}

// Has reports whether key has been marked transient.
func (s *TransientSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok
}

// Forget drops the transient flag for key, if any.
func (s *TransientSet) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
}
