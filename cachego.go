// Package cachego provides a content-addressable derived-data cache for Go.
//
// The cache sits in front of an expensive, deterministic derivation: callers
// ask for a value by key, and the cache either returns a previously stored
// result or invokes a caller-supplied Producer to build it, storing the
// result for future callers.
//
// Production-ready features include:
//
//   - Synchronous and handle-based asynchronous call surfaces with
//     identical semantics
//   - Pluggable multi-tier storage backends: memory, local filesystem
//     (mmap reads, atomic writes), S3, MinIO, and ordered chains with
//     read-through backfill
//   - Transparent payload compression (zstd, LZ4) and byte-rate throttling
//     as composable tier wrappers
//   - Per-payload cache policy overrides resolved by binary search over a
//     shared immutable overlay
//   - Optional determinism verification of cache hits against a fresh build
//   - Structured logging (log/slog) and a pluggable metrics collector
//
// # Quick Start
//
//	tier, err := backend.NewLocal("./ddc")
//	if err != nil {
//	    panic(err)
//	}
//	cache := cachego.New(tier)
//	defer cache.Close()
//
//	data, ok, wasBuilt := cache.GetSynchronous(ctx, producer)
//
// Asynchronous requests return a Handle that is polled, waited on, and
// collected exactly once:
//
//	h := cache.GetAsynchronous(ctx, producer)
//	for !cache.PollAsynchronousCompletion(h) {
//	    doOtherWork()
//	}
//	data, ok, wasBuilt := cache.GetAsynchronousResults(h)
//
// # Contract
//
// Handles are never zero and never reused while live. Collecting an unknown
// or already-collected handle, and passing a key outside [A-Za-z0-9_$], are
// programming errors and panic. A failed derivation is (nil, false), never
// an error or a crash.
package cachego

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/cachego/backend"
	"github.com/hupe1980/cachego/policy"
)

// Handle identifies one outstanding asynchronous request. Handles are
// process-wide unique, strictly increasing, and never zero.
type Handle uint64

// InvalidHandle is never returned by GetAsynchronous.
const InvalidHandle Handle = 0

// Producer is a caller-supplied unit of work invoked on a cache miss.
//
// Build must report failure through its error return; a Build that panics is
// a bug in the producer, not a condition the cache handles. Build may run
// off the calling goroutine when IsBuildThreadsafe reports true.
type Producer interface {
	// LogicalName names the derivation, e.g. "NormalMap".
	LogicalName() string
	// VersionString changes whenever the derivation's output would
	// change for the same inputs.
	VersionString() string
	// KeySuffix encodes the request-specific inputs.
	KeySuffix() string
	// Build computes the payload.
	Build(ctx context.Context) ([]byte, error)
	// IsBuildThreadsafe reports whether Build may run on a background
	// worker. Non-threadsafe producers run inline on the issuing
	// goroutine even for asynchronous requests.
	IsBuildThreadsafe() bool
}

// DeterministicProducer is an optional capability: producers that return
// byte-identical output for the same key may opt in to hit verification.
type DeterministicProducer interface {
	Producer
	IsDeterministic() bool
}

// Cache is the request engine: it owns the handle table, dispatches
// derivation workers inline or onto the background pool, and exposes the
// poll/wait/collect protocol. Safe for concurrent use from many goroutines.
type Cache struct {
	backend backend.Backend
	logger  *Logger
	metrics MetricsCollector
	verify  bool
	pool    *workerPool

	// nextHandle is independent of mu so handle allocation never blocks
	// on in-flight work.
	nextHandle atomic.Uint64

	mu      sync.Mutex
	pending map[Handle]*worker

	// outstanding counts workers that have not finished DoWork yet;
	// Close waits on it for quiescence.
	outstanding sync.WaitGroup
	closed      atomic.Bool
}

// New creates a cache in front of the given backend tier (often a
// backend.Chain).
func New(b backend.Backend, opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache{
		backend: b,
		logger:  o.logger,
		metrics: o.metrics,
		verify:  o.verify,
		pool:    newWorkerPool(o.numWorkers),
		pending: make(map[Handle]*worker),
	}
}

func (c *Cache) checkOpen() {
	if c.closed.Load() {
		panic(ErrClosed)
	}
}

// GetSynchronous runs one get-or-build cycle inline and returns the payload,
// whether the request succeeded, and whether the payload was built rather
// than served from a tier.
func (c *Cache) GetSynchronous(ctx context.Context, p Producer) (data []byte, ok, wasBuilt bool) {
	return c.GetSynchronousPolicy(ctx, p, policy.RecordPolicy{})
}

// GetSynchronousPolicy is GetSynchronous with per-record cache policy.
func (c *Cache) GetSynchronousPolicy(ctx context.Context, p Producer, pol policy.RecordPolicy) (data []byte, ok, wasBuilt bool) {
	c.checkOpen()

	key := BuildCacheKey(p)
	w := newWorker(c, key, p, pol)

	c.outstanding.Add(1)
	w.doWork(ctx)

	data, ok, wasBuilt = w.results()
	w.markDestroyed()
	return data, ok, wasBuilt
}

// GetSynchronousData fetches a raw data blob by key. There is no producer:
// a miss is simply (nil, false).
func (c *Cache) GetSynchronousData(ctx context.Context, key string) ([]byte, bool) {
	c.checkOpen()
	mustValidKey(key)

	w := newWorker(c, key, nil, policy.RecordPolicy{})

	c.outstanding.Add(1)
	w.doWork(ctx)

	data, ok, _ := w.results()
	w.markDestroyed()
	return data, ok
}

// GetAsynchronous issues a get-or-build request and returns immediately with
// a handle. The worker runs on the background pool, or inline before this
// call returns when the producer is not thread-safe.
//
// Every handle must eventually be consumed by GetAsynchronousResults;
// abandoning one leaks its pending-table entry.
func (c *Cache) GetAsynchronous(ctx context.Context, p Producer) Handle {
	return c.GetAsynchronousPolicy(ctx, p, policy.RecordPolicy{})
}

// GetAsynchronousPolicy is GetAsynchronous with per-record cache policy.
func (c *Cache) GetAsynchronousPolicy(ctx context.Context, p Producer, pol policy.RecordPolicy) Handle {
	c.checkOpen()

	key := BuildCacheKey(p)
	w := newWorker(c, key, p, pol)
	h := Handle(c.nextHandle.Add(1))

	c.outstanding.Add(1)

	c.mu.Lock()
	c.pending[h] = w
	c.mu.Unlock()

	if !p.IsBuildThreadsafe() {
		// The producer cannot leave this goroutine; run to completion
		// before returning. The handle protocol is unchanged.
		w.doWork(ctx)
		return h
	}

	// Once started, a worker runs to completion: the issuing context's
	// cancellation must not reach it.
	wctx := context.WithoutCancel(ctx)
	if err := c.pool.Submit(func() { w.doWork(wctx) }); err != nil {
		// Pool shut down between checkOpen and here.
		panic("cachego: GetAsynchronous raced with Close")
	}
	return h
}

// PollAsynchronousCompletion reports whether the identified request has
// finished. It never blocks. Polling an unknown or already-collected handle
// panics.
func (c *Cache) PollAsynchronousCompletion(h Handle) bool {
	return c.lookup(h).finished()
}

// WaitAsynchronousCompletion blocks until the identified request finishes.
func (c *Cache) WaitAsynchronousCompletion(h Handle) {
	w := c.lookup(h)

	start := time.Now()
	w.wait()
	c.metrics.RecordAsyncWait(time.Since(start))
}

// GetAsynchronousResults consumes a handle: it removes the pending-table
// entry, waits for the worker if it is still running, and returns the
// outcome. A handle is consumable exactly once; a second call panics.
func (c *Cache) GetAsynchronousResults(h Handle) (data []byte, ok, wasBuilt bool) {
	c.mu.Lock()
	w, live := c.pending[h]
	delete(c.pending, h)
	c.mu.Unlock()

	if !live {
		panic("cachego: GetAsynchronousResults on unknown or already-collected handle")
	}

	w.wait()
	data, ok, wasBuilt = w.results()
	w.markDestroyed()
	return data, ok, wasBuilt
}

func (c *Cache) lookup(h Handle) *worker {
	c.mu.Lock()
	w, live := c.pending[h]
	c.mu.Unlock()

	if !live {
		panic("cachego: unknown or already-collected handle")
	}
	return w
}

// Put stores data under key in the backend chain. Storage failures are
// logged and counted, not surfaced: the caller's data is already in hand.
func (c *Cache) Put(ctx context.Context, key string, data []byte) {
	c.PutPolicy(ctx, key, data, policy.RecordPolicy{})
}

// PutPolicy is Put with per-record cache policy.
func (c *Cache) PutPolicy(ctx context.Context, key string, data []byte, pol policy.RecordPolicy) {
	c.checkOpen()
	mustValidKey(key)

	if pol.Aggregate().Has(policy.SkipWrite) {
		return
	}

	start := time.Now()
	err := c.backend.Put(ctx, key, data, true)
	c.metrics.RecordPut(len(data), time.Since(start), err)
	c.logger.LogPut(ctx, key, len(data), err)
}

// MarkTransient flags key as safe to drop on the next transient cleanup.
func (c *Cache) MarkTransient(ctx context.Context, key string) {
	c.checkOpen()
	mustValidKey(key)

	c.backend.MarkTransient(ctx, key)
}

// CachedDataProbablyExists probes the backend chain for key. False
// positives are possible and corrected at get time; false negatives are not.
func (c *Cache) CachedDataProbablyExists(ctx context.Context, key string) bool {
	c.checkOpen()
	mustValidKey(key)

	start := time.Now()
	exists := c.backend.ProbablyExists(ctx, key)
	c.metrics.RecordExists(1, time.Since(start))
	return exists
}

// CachedDataProbablyExistsBatch probes many keys at once. Bit i of the
// result is set iff keys[i] probably exists.
func (c *Cache) CachedDataProbablyExistsBatch(ctx context.Context, keys []string) *roaring.Bitmap {
	c.checkOpen()
	for _, key := range keys {
		mustValidKey(key)
	}

	start := time.Now()
	bm := c.backend.ProbablyExistsBatch(ctx, keys)
	c.metrics.RecordExists(len(keys), time.Since(start))
	return bm
}

// TryToPrefetch hints that keys will be requested soon, letting the chain
// promote them into faster tiers. Returns true if all keys are now cheap to
// get.
func (c *Cache) TryToPrefetch(ctx context.Context, keys []string) bool {
	c.checkOpen()
	for _, key := range keys {
		mustValidKey(key)
	}

	ok := c.backend.TryToPrefetch(ctx, keys)
	c.metrics.RecordPrefetch(len(keys), ok)
	return ok
}

// Close blocks until every pending worker, synchronous or asynchronous, has
// finished, then shuts down the background pool. Uncollected handles are
// invalidated. Close is idempotent.
func (c *Cache) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	// Quiescence: no orphaned background work survives the cache.
	c.outstanding.Wait()
	c.pool.Close()

	c.mu.Lock()
	n := len(c.pending)
	c.pending = make(map[Handle]*worker)
	c.mu.Unlock()

	if n > 0 {
		c.logger.LogDroppedHandles(n)
	}
}
