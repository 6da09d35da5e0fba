package iconcache

import (
	"context"
	"errors"
	"log/slog"
	nethttp "net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/iconcache/cache"
	"github.com/meigma/iconcache/cache/disk"
	iconhttp "github.com/meigma/iconcache/http"
	"github.com/meigma/iconcache/kv"
	"github.com/meigma/iconcache/netstate"
	"github.com/meigma/iconcache/resolve"
	"github.com/meigma/iconcache/retry"
	"github.com/meigma/iconcache/style"
)

// Client resolves logical icons and keeps their style rules registered.
//
// Client wires a Loader, a persistent asset store, a retry queue driven by
// observed connectivity, and a style.Registry backed by a kv.Store.
type Client struct {
	cacheDir     string
	diskOpts     []disk.Option
	store        cache.Store
	kv           kv.Store
	resolver     *resolve.Resolver
	fetcher      Fetcher
	httpClient   *nethttp.Client
	logger       *slog.Logger
	tracer       trace.Tracer
	retryDelay   time.Duration
	loaderOpts   []LoaderOption
	registryOpts []style.Option
	clean        func(context.Context)

	monitor  *netstate.Monitor
	queue    *retry.Queue
	loader   *Loader
	registry *style.Registry

	cancel    context.CancelFunc
	bg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		logger:   slog.New(slog.DiscardHandler),
		resolver: resolve.New(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.store == nil {
		if c.cacheDir != "" {
			c.store = disk.OpenOrNoop(context.Background(), c.cacheDir, append([]disk.Option{disk.WithLogger(c.logger)}, c.diskOpts...)...)
		} else {
			c.store = cache.Noop{}
		}
	}
	if c.kv == nil {
		c.kv = kv.NewMemory()
	}

	c.monitor = netstate.New(netstate.WithLogger(c.logger))
	if c.fetcher == nil {
		c.fetcher = iconhttp.NewFetcher(
			iconhttp.WithClient(c.httpClient),
			iconhttp.WithObserver(c.monitor),
			iconhttp.WithLogger(c.logger),
		)
	}
	qopts := []retry.Option{
		retry.WithConnectivity(c.monitor),
		retry.WithMaxAttempts(retryBudget(c.loaderOpts)),
		retry.WithLogger(c.logger),
	}
	if c.retryDelay > 0 {
		qopts = append(qopts, retry.WithBaseDelay(c.retryDelay))
	}
	c.queue = retry.New(qopts...)

	lopts := []LoaderOption{
		WithStore(c.store),
		WithFetcher(c.fetcher),
		WithResolver(c.resolver),
		WithRetryQueue(c.queue),
		WithLogger(c.logger),
	}
	if c.tracer != nil {
		lopts = append(lopts, WithTracer(c.tracer))
	}
	c.loader = NewLoader(append(lopts, c.loaderOpts...)...)

	ropts := []style.Option{style.WithResolver(c.resolver), style.WithLogger(c.logger)}
	c.registry = style.New(c.kv, append(ropts, c.registryOpts...)...)
	c.registry.EnsureStylesheet(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.clean == nil {
		c.clean = c.sweep
	}
	c.bg.Go(func() { c.clean(ctx) })
	return c, nil
}

// retryBudget returns the retry count the loader options configure, so the
// shared queue accepts every retry the loader asks for.
func retryBudget(opts []LoaderOption) int {
	l := &Loader{maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(l)
	}
	return l.maxRetries
}

// sweep removes corrupt store entries left by an earlier process.
func (c *Client) sweep(ctx context.Context) {
	removed, err := c.store.ValidateAndClean(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Debug("store sweep failed", slog.Any("error", err))
		}
		return
	}
	if removed > 0 {
		c.logger.Info("removed corrupt icon entries", slog.Int("count", removed))
	}
}

// ResolveIcon resolves req to a displayable reference. It never fails.
//
// For a logical icon the sources are tried in order: the public CDN and its
// mirror, the same-origin proxy when the resolver has an origin or base, then
// the optional self-hosted base. They form one attempt chain with one retry
// budget. A usable result is registered as a style rule; later calls for the
// same icon and size bucket return the registered reference without loading.
func (c *Client) ResolveIcon(ctx context.Context, req Request) Result {
	bucket := Bucket(req.Size)
	if req.Name == "" {
		return c.loader.Load(ctx, req.Ref, bucket)
	}

	urls, err := resolve.ForIcon(req.Name, req.Variant, req.Base)
	if err != nil {
		return fallbackResult(err)
	}
	if rule, ok := c.registry.Lookup(urls.Name, urls.Style, bucket); ok && rule.Ref != "" {
		return Result{Ref: rule.Ref, Origin: OriginRule}
	}

	res := c.loader.LoadSources(ctx, bucket, urls.Candidates()...)
	if res.Fallback() || IsFallback(res.Ref) {
		return res
	}
	c.registry.Register(urls.Name, urls.Style, res.Ref, bucket)
	return res
}

// HasRule reports whether a rule for the icon at the given size is
// registered or pending.
func (c *Client) HasRule(name, variant string, size float64) bool {
	return c.registry.HasRule(resolve.KebabName(name), resolve.NormalizeStyle(variant), Bucket(size))
}

// Loader returns the Client's loader.
func (c *Client) Loader() *Loader {
	return c.loader
}

// Registry returns the Client's rule registry.
func (c *Client) Registry() *style.Registry {
	return c.registry
}

// Store returns the Client's asset store.
func (c *Client) Store() cache.Store {
	return c.store
}

// Online reports the inferred network state.
func (c *Client) Online() bool {
	return c.monitor.Online()
}

// Close stops background work, flushes queued rules and releases stores.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.bg.Wait()
		c.queue.Close()
		c.loader.Close()
		c.registry.Flush(context.Background())
		err = c.kv.Close()
	})
	return err
}
