package cachego

// options holds constructor configuration for Cache.
type options struct {
	logger     *Logger
	metrics    MetricsCollector
	verify     bool
	numWorkers int
}

func defaultOptions() options {
	return options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
}

// Option configures Cache constructor behavior.
type Option func(*options)

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures operational metrics collection.
// If nil is passed, collection is disabled.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithVerifyDeterministicBuilds enables the diagnostic verification pass:
// every cache hit whose producer declares itself deterministic is rebuilt
// and byte-compared against the cached value, and mismatches are logged
// loudly. The fetched value is returned either way.
//
// Every hit pays a full rebuild; enable only while hunting nondeterminism.
func WithVerifyDeterministicBuilds(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

// WithWorkers sets the number of background goroutines executing
// asynchronous requests. Values <= 0 default to GOMAXPROCS.
//
// Builds are usually I/O- or CPU-heavy; size the pool for whichever
// dominates your producers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.numWorkers = n
	}
}
