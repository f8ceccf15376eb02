package cachego

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/cachego/policy"
)

// Worker lifecycle bits. A worker is Idle at construction (no bits set),
// Running while doWork executes, Finished once the outcome is published, and
// Destroyed when its owner is done with it. Transitions are enforced with
// CAS; an illegal transition means a handle was reused or collected
// concurrently, which is a caller bug, so it panics.
const (
	stateRunning uint32 = 1 << iota
	stateFinished
	stateDestroyed
)

// worker performs exactly one get-or-build-or-store cycle and publishes its
// outcome. One per in-flight request; never shared, never re-entered.
type worker struct {
	cache    *Cache
	key      string
	producer Producer // nil for raw data-blob gets
	pol      policy.RecordPolicy

	// Outcome. Written only by doWork before done is closed; read only
	// after done is observed closed. The channel close is the
	// happens-before edge publishing the buffer with the Finished flag.
	data     []byte
	ok       bool
	wasBuilt bool

	state atomic.Uint32
	done  chan struct{}
}

func newWorker(c *Cache, key string, p Producer, pol policy.RecordPolicy) *worker {
	return &worker{
		cache:    c,
		key:      key,
		producer: p,
		pol:      pol,
		done:     make(chan struct{}),
	}
}

func (w *worker) markRunning() {
	if !w.state.CompareAndSwap(0, stateRunning) {
		panic("cachego: worker started twice")
	}
}

func (w *worker) markFinished() {
	for {
		s := w.state.Load()
		if s&stateRunning == 0 || s&stateFinished != 0 {
			panic("cachego: worker finished without running, or finished twice")
		}
		if w.state.CompareAndSwap(s, (s&^stateRunning)|stateFinished) {
			return
		}
	}
}

func (w *worker) markDestroyed() {
	for {
		s := w.state.Load()
		if s&stateRunning != 0 || s&stateDestroyed != 0 {
			panic("cachego: worker destroyed while running, or destroyed twice")
		}
		if w.state.CompareAndSwap(s, s|stateDestroyed) {
			return
		}
	}
}

// finished never blocks; it is the lock-free half of the poll protocol.
func (w *worker) finished() bool {
	return w.state.Load()&stateFinished != 0
}

// wait blocks until doWork has published the outcome.
func (w *worker) wait() {
	<-w.done
}

// results must only be called after the worker finished.
func (w *worker) results() (data []byte, ok, wasBuilt bool) {
	return w.data, w.ok, w.wasBuilt
}

// doWork runs the derive cycle: query the backend chain, build on miss,
// write back on success. All backend and producer failures collapse into
// ok=false with an empty buffer; nothing escalates.
func (w *worker) doWork(ctx context.Context) {
	w.markRunning()
	defer func() {
		w.markFinished()
		close(w.done)
		w.cache.outstanding.Done()
	}()

	c := w.cache
	agg := w.pol.Aggregate()

	var (
		data []byte
		hit  bool
	)

	getStart := time.Now()
	if !agg.Has(policy.SkipRead) {
		data, hit = c.backend.Get(ctx, w.key)
	}
	getDur := time.Since(getStart)

	var buildDur time.Duration

	switch {
	case hit:
		if c.verify {
			w.verifyHit(ctx, data)
		}
		w.data = data
		w.ok = true

	case w.producer != nil:
		buildStart := time.Now()
		built, err := w.producer.Build(ctx)
		buildDur = time.Since(buildStart)
		w.wasBuilt = true

		if err != nil || len(built) == 0 {
			c.logger.LogBuildFailure(ctx, w.key, err)
			break
		}

		w.data = built
		w.ok = true

		if !agg.Has(policy.SkipWrite) {
			// Best-effort: the derived bytes are already in hand,
			// so a failed store-back never fails the get.
			if perr := c.backend.Put(ctx, w.key, built, false); perr != nil {
				c.logger.LogWriteBackFailure(ctx, w.key, perr)
			}
		}

	default:
		// Raw data-blob miss: not an error, just absent.
	}

	if !w.ok {
		// Never hand out partial bytes on failure.
		w.data = nil
	}

	c.metrics.RecordGet(hit, w.wasBuilt, getDur, buildDur)
	c.logger.LogGet(ctx, w.key, hit, w.wasBuilt, w.ok)
}

// verifyHit recompares a cache hit against a fresh build when the producer
// declares itself deterministic. This is a diagnostic for producer or
// backend bugs, not a control-flow fork: the fetched value is returned
// regardless.
func (w *worker) verifyHit(ctx context.Context, fetched []byte) {
	dp, isDet := w.producer.(DeterministicProducer)
	if !isDet || !dp.IsDeterministic() {
		return
	}

	rebuilt, err := dp.Build(ctx)
	if err != nil {
		w.cache.logger.LogVerifyRebuildFailure(ctx, w.key, err)
		return
	}
	if !bytes.Equal(rebuilt, fetched) {
		w.cache.logger.LogVerifyMismatch(ctx, w.key, len(fetched), len(rebuilt))
	}
}
