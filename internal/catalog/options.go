package catalog

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/catalog/internal/cachemanager"
)

// Options configures a Catalog.
type Options struct {
	// ReadOnly puts the store and every Collection in run-time mode:
	// structural edits fail with ErrUnsupportedMutation and repaired
	// Identifiers stay in memory.
	ReadOnly bool

	// CascadeDelete deletes a Collection's Records along with it.
	CascadeDelete bool

	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration

	Tracer trace.Tracer
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		CacheTTL:             cachemanager.DefaultExpiration,
		CacheCleanupInterval: cachemanager.DefaultCleanupInterval,
	}
}

// WithReadOnly sets run-time mode.
func WithReadOnly(readOnly bool) Option {
	return func(o *Options) { o.ReadOnly = readOnly }
}

// WithCascadeDelete makes DeleteCollection remove contained Records.
func WithCascadeDelete(cascade bool) Option {
	return func(o *Options) { o.CascadeDelete = cascade }
}

// WithCache sets the resolution cache ttl and cleanup interval.
func WithCache(ttl, cleanupInterval time.Duration) Option {
	return func(o *Options) {
		o.CacheTTL = ttl
		o.CacheCleanupInterval = cleanupInterval
	}
}

// WithTracer sets the tracer for lifecycle spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Options) { o.Tracer = tracer }
}
