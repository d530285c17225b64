package zlog

import (
	"log/slog"

	"github.com/hupe1980/zlog/internal/resource"
)

// DefaultCacheSize is the default byte capacity of the entry cache.
const DefaultCacheSize = 64 << 20

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	cacheSize        int64
	cacheBudget      *CacheBudget
}

// Option configures Open, Create and OpenOrCreate.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &zlog.BasicMetricsCollector{}
//	l, _ := zlog.Open(ctx, cluster, "orders", zlog.WithMetricsCollector(metrics))
//	// ... use l ...
//	stats := metrics.GetStats()
//	fmt.Printf("Appends: %d, retries: %d\n", stats.AppendCount, stats.AppendRetries)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := zlog.NewJSONLogger(slog.LevelInfo)
//	l, _ := zlog.Open(ctx, cluster, "orders", zlog.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCacheSize sets the byte capacity of the cache of written entries.
// A size of zero disables caching.
func WithCacheSize(bytes int64) Option {
	return func(o *options) {
		o.cacheSize = bytes
	}
}

// CacheBudget bounds the memory held by the entry caches of every handle it
// is passed to. Closing a handle returns its share.
type CacheBudget struct {
	rc *resource.Controller
}

// NewCacheBudget returns a budget of limit bytes. A limit of zero tracks
// usage without bounding it.
func NewCacheBudget(limit int64) *CacheBudget {
	return &CacheBudget{rc: resource.NewController(resource.Config{MemoryLimitBytes: limit})}
}

// Usage returns the bytes currently cached under the budget.
func (b *CacheBudget) Usage() int64 {
	return b.rc.MemoryUsage()
}

// Limit returns the budget's limit in bytes, zero if unbounded.
func (b *CacheBudget) Limit() int64 {
	return b.rc.MemoryLimit()
}

// WithCacheBudget charges the handle's entry cache to b. Entries that do not
// fit the budget are not cached.
func WithCacheBudget(b *CacheBudget) Option {
	return func(o *options) {
		o.cacheBudget = b
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		cacheSize:        DefaultCacheSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
