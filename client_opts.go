package iconcache

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/iconcache/cache"
	"github.com/meigma/iconcache/cache/disk"
	"github.com/meigma/iconcache/kv"
	"github.com/meigma/iconcache/resolve"
	"github.com/meigma/iconcache/style"
)

// Option configures a Client.
type Option func(*Client) error

// Default store limits for WithCacheDir.
const (
	DefaultCacheMaxBytes = disk.DefaultMaxBytes
	DefaultCacheMaxAge   = disk.DefaultMaxAge
)

// WithCacheDir persists assets in dir. A directory that cannot be used
// degrades to a store that keeps nothing.
func WithCacheDir(dir string, opts ...disk.Option) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		c.cacheDir = dir
		c.diskOpts = opts
		return nil
	}
}

// WithAssetStore sets the persistent asset store directly.
func WithAssetStore(s cache.Store) Option {
	return func(c *Client) error {
		if s == nil {
			return errors.New("asset store is nil")
		}
		c.store = s
		return nil
	}
}

// WithKV sets the durable store for registered rules. The Client closes it.
func WithKV(s kv.Store) Option {
	return func(c *Client) error {
		if s == nil {
			return errors.New("kv store is nil")
		}
		c.kv = s
		return nil
	}
}

// WithIconResolver sets the resolver shared by the loader and the registry.
func WithIconResolver(r *resolve.Resolver) Option {
	return func(c *Client) error {
		c.resolver = r
		return nil
	}
}

// WithIconFetcher sets the network fetcher.
func WithIconFetcher(f Fetcher) Option {
	return func(c *Client) error {
		c.fetcher = f
		return nil
	}
}

// WithHTTPClient sets the HTTP client used by the default fetcher. It has no
// effect with WithIconFetcher.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithClientLogger sets the logger for the Client and its components.
func WithClientLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithClientTracer sets the tracer used for load spans.
func WithClientTracer(t trace.Tracer) Option {
	return func(c *Client) error {
		c.tracer = t
		return nil
	}
}

// WithRetryBaseDelay sets the retry queue's base delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) error {
		c.retryDelay = d
		return nil
	}
}

// WithLoaderOptions appends options applied to the Client's Loader after
// its defaults.
func WithLoaderOptions(opts ...LoaderOption) Option {
	return func(c *Client) error {
		c.loaderOpts = append(c.loaderOpts, opts...)
		return nil
	}
}

// WithRegistryOptions appends options applied to the Client's rule registry.
func WithRegistryOptions(opts ...style.Option) Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, opts...)
		return nil
	}
}

// WithoutBackgroundClean disables the startup sweep of the asset store.
func WithoutBackgroundClean() Option {
	return func(c *Client) error {
		c.clean = func(context.Context) {}
		return nil
	}
}
