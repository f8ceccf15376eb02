package cachego

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    hitCounter    prometheus.Counter
//	    buildDuration prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordGet(hit, wasBuilt bool, getDur, buildDur time.Duration) {
//	    if hit { p.hitCounter.Inc() }
//	    // ... record durations, etc.
//	}
type MetricsCollector interface {
	// RecordGet is called after each get-or-build cycle. getDur covers
	// the backend query, buildDur the producer invocation (zero when
	// nothing was built).
	RecordGet(hit, wasBuilt bool, getDur, buildDur time.Duration)

	// RecordPut is called after each explicit put. err is nil on success.
	RecordPut(size int, duration time.Duration, err error)

	// RecordAsyncWait is called with the time a caller spent blocked in
	// WaitAsynchronousCompletion.
	RecordAsyncWait(duration time.Duration)

	// RecordExists is called after each existence probe; count is the
	// number of keys probed.
	RecordExists(count int, duration time.Duration)

	// RecordPrefetch is called after each prefetch hint.
	RecordPrefetch(count int, ok bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(bool, bool, time.Duration, time.Duration) {}
func (NoopMetricsCollector) RecordPut(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordAsyncWait(time.Duration)                      {}
func (NoopMetricsCollector) RecordExists(int, time.Duration)                    {}
func (NoopMetricsCollector) RecordPrefetch(int, bool)                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount        atomic.Int64
	HitCount        atomic.Int64
	MissCount       atomic.Int64
	BuildCount      atomic.Int64
	GetTotalNanos   atomic.Int64
	BuildTotalNanos atomic.Int64

	PutCount      atomic.Int64
	PutErrors     atomic.Int64
	PutTotalBytes atomic.Int64

	AsyncWaitCount      atomic.Int64
	AsyncWaitTotalNanos atomic.Int64

	ExistsProbes   atomic.Int64
	PrefetchCount  atomic.Int64
	PrefetchMisses atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(hit, wasBuilt bool, getDur, buildDur time.Duration) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(getDur.Nanoseconds())
	if hit {
		b.HitCount.Add(1)
	} else {
		b.MissCount.Add(1)
	}
	if wasBuilt {
		b.BuildCount.Add(1)
		b.BuildTotalNanos.Add(buildDur.Nanoseconds())
	}
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(size int, _ time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalBytes.Add(int64(size))
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordAsyncWait implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAsyncWait(duration time.Duration) {
	b.AsyncWaitCount.Add(1)
	b.AsyncWaitTotalNanos.Add(duration.Nanoseconds())
}

// RecordExists implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExists(count int, _ time.Duration) {
	b.ExistsProbes.Add(int64(count))
}

// RecordPrefetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrefetch(count int, ok bool) {
	b.PrefetchCount.Add(int64(count))
	if !ok {
		b.PrefetchMisses.Add(1)
	}
}

// HitRate returns hits / gets, or 0 before the first get.
func (b *BasicMetricsCollector) HitRate() float64 {
	gets := b.GetCount.Load()
	if gets == 0 {
		return 0
	}
	return float64(b.HitCount.Load()) / float64(gets)
}
