package iconcache

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/iconcache/cache"
	"github.com/meigma/iconcache/resolve"
	"github.com/meigma/iconcache/retry"
)

// Default loader timings.
const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultProbeTimeout = 50 * time.Millisecond
	DefaultMaxRetries   = retry.DefaultMaxAttempts
)

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStore sets the persistent store. The default stores nothing.
func WithStore(s cache.Store) LoaderOption {
	return func(l *Loader) {
		if s != nil {
			l.store = s
		}
	}
}

// WithFetcher sets the network fetcher.
func WithFetcher(f Fetcher) LoaderOption {
	return func(l *Loader) {
		if f != nil {
			l.fetcher = f
		}
	}
}

// WithResolver sets the URL resolver.
func WithResolver(r *resolve.Resolver) LoaderOption {
	return func(l *Loader) {
		if r != nil {
			l.resolver = r
		}
	}
}

// WithRetryQueue sets the queue used for transient failures. The loader
// does not close a queue it did not create.
func WithRetryQueue(q *retry.Queue) LoaderOption {
	return func(l *Loader) {
		if q != nil {
			l.queue = q
		}
	}
}

// WithFetchTimeout bounds each fetch attempt against one source.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

// WithProbeTimeout bounds the initial store lookup.
func WithProbeTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.probeTimeout = d
		}
	}
}

// WithMaxRetries sets how many queued retries may follow the first attempt
// of a load. A load makes at most n+1 attempts.
func WithMaxRetries(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer used for load spans.
func WithTracer(t trace.Tracer) LoaderOption {
	return func(l *Loader) {
		if t != nil {
			l.tracer = t
		}
	}
}
