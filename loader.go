package iconcache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meigma/iconcache/cache"
	iconhttp "github.com/meigma/iconcache/http"
	"github.com/meigma/iconcache/inflight"
	"github.com/meigma/iconcache/internal/sizing"
	"github.com/meigma/iconcache/resolve"
	"github.com/meigma/iconcache/retry"
	"github.com/meigma/iconcache/validate"
)

const tracerName = "github.com/meigma/iconcache"

// Loader turns references into displayable data URLs.
//
// Loads consult, in order: the in-memory tier, the persistent store (bounded
// by the probe timeout), the network with mirrors, the retry queue for
// transient failures, a stale store read, and finally the fallback.
// Concurrent loads of the same URL and bucket share one attempt chain: a first
// attempt plus at most MaxRetries queued retries, each trying every source.
type Loader struct {
	store        cache.Store
	fetcher      Fetcher
	resolver     *resolve.Resolver
	queue        *retry.Queue
	ownsQueue    bool
	fetchTimeout time.Duration
	probeTimeout time.Duration
	maxRetries   int
	logger       *slog.Logger
	tracer       trace.Tracer

	memory sync.Map // canonical URL -> loaded
	group  inflight.Group[Result]
	writes sync.WaitGroup
}

// loaded is a successfully decoded asset.
type loaded struct {
	ref    string
	digest digest.Digest
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		store:        cache.Noop{},
		resolver:     resolve.New(),
		fetchTimeout: DefaultFetchTimeout,
		probeTimeout: DefaultProbeTimeout,
		maxRetries:   DefaultMaxRetries,
		logger:       slog.New(slog.DiscardHandler),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fetcher == nil {
		l.fetcher = iconhttp.NewFetcher(iconhttp.WithLogger(l.logger))
	}
	if l.queue == nil {
		l.queue = retry.New(retry.WithMaxAttempts(l.maxRetries), retry.WithLogger(l.logger))
		l.ownsQueue = true
	}
	return l
}

// Close stops the retry queue if the loader created it and waits for
// pending store writes.
func (l *Loader) Close() {
	if l.ownsQueue {
		l.queue.Close()
	}
	l.writes.Wait()
}

// InFlight returns the number of load chains currently running.
func (l *Loader) InFlight() int {
	return l.group.Len()
}

// Load resolves ref for the given size bucket. It never fails: on total
// failure the result carries FallbackRef and the last error.
func (l *Loader) Load(ctx context.Context, ref string, bucket int) Result {
	return l.LoadSources(ctx, bucket, ref)
}

// LoadSources resolves the first ref, treating the remaining refs as further
// mirrors of it. All sources share one attempt chain, one retry budget and
// the first ref's dedup key, and the result is cached under the first ref.
// Extra refs that do not resolve to an absolute http(s) URL are skipped.
func (l *Loader) LoadSources(ctx context.Context, bucket int, refs ...string) Result {
	if !sizing.IsBucket(bucket) {
		bucket = sizing.Bucket(float64(bucket))
	}
	var ref string
	if len(refs) > 0 {
		ref = refs[0]
	}
	ctx, span := l.tracer.Start(ctx, "iconcache.Load",
		trace.WithAttributes(
			attribute.String("icon.ref", truncate(ref, 256)),
			attribute.Int("icon.bucket", bucket),
			attribute.Int("icon.sources", len(refs)),
		))
	defer span.End()

	res := l.load(ctx, ref, refs[min(1, len(refs)):], bucket)
	span.SetAttributes(attribute.String("icon.origin", res.Origin.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		if res.Origin == OriginFallback {
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}
	return res
}

func (l *Loader) load(ctx context.Context, ref string, extra []string, bucket int) Result {
	if ref == "" {
		return fallbackResult(ErrEmptyRef)
	}
	if resolve.IsInline(ref) || !l.resolver.IsURL(ref) {
		return Result{Ref: ref, Origin: OriginInline}
	}

	url := l.canonical(ref)
	if v, ok := l.memory.Load(url); ok {
		hit := v.(loaded) //nolint:errcheck // only loaded values are stored
		return Result{Ref: hit.ref, Origin: OriginMemory, Digest: hit.digest}
	}

	key := url + "@" + strconv.Itoa(bucket)
	res, shared, err := l.group.Do(ctx, key, func(ctx context.Context) (Result, error) {
		return l.resolveURL(ctx, url, l.sources(url, extra)), nil
	})
	if err != nil {
		return fallbackResult(err)
	}
	if shared {
		l.logger.Debug("joined in-flight load", slog.String("url", url))
	}
	return res
}

// canonical returns the absolute, runtime-rewritten form of ref.
func (l *Loader) canonical(ref string) string {
	return l.resolver.Canonical(l.resolver.Rewrite(l.resolver.Canonical(ref)))
}

// sources lists url and its mirrors, then each extra ref and its mirrors,
// without duplicates.
func (l *Loader) sources(url string, extra []string) []string {
	out := resolve.Mirrors(url)
	for _, ref := range extra {
		if ref == "" || resolve.IsInline(ref) || !l.resolver.IsURL(ref) {
			continue
		}
		abs := l.canonical(ref)
		if !l.resolver.Fetchable(abs) {
			l.logger.Debug("skipping unresolvable source", slog.String("ref", ref))
			continue
		}
		for _, m := range resolve.Mirrors(abs) {
			if !slices.Contains(out, m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// resolveURL runs the store, network, retry and stale steps for one URL.
// sources are the locations tried on every attempt.
func (l *Loader) resolveURL(ctx context.Context, url string, sources []string) Result {
	if hit, ok := l.probe(ctx, url); ok {
		l.memory.Store(url, hit)
		return Result{Ref: hit.ref, Origin: OriginStore, Digest: hit.digest}
	}

	hit, err := l.fetchAll(ctx, url, sources)
	for retries := 0; err != nil && Classify(err) == ClassTransient && retries < l.maxRetries; {
		retries++
		next, qerr := l.retry(ctx, url, sources, retries)
		if qerr == nil {
			hit, err = next, nil
			break
		}
		if errors.Is(qerr, retry.ErrExhausted) {
			break
		}
		if ctx.Err() != nil || errors.Is(qerr, retry.ErrOffline) || errors.Is(qerr, retry.ErrClosed) {
			err = errors.Join(err, qerr)
			break
		}
		err = qerr
	}
	if err == nil {
		l.memory.Store(url, hit)
		return Result{Ref: hit.ref, Origin: OriginNetwork, Digest: hit.digest}
	}

	l.logger.Debug("icon sources failed", slog.String("url", url), slog.String("class", Classify(err).String()), slog.Any("error", err))
	if stale, ok := l.read(ctx, url); ok {
		return Result{Ref: stale.ref, Origin: OriginStale, Digest: stale.digest, Err: err}
	}
	return fallbackResult(err)
}

// retry hands retry number n to the queue and waits for it.
func (l *Loader) retry(ctx context.Context, url string, sources []string, n int) (loaded, error) {
	var (
		mu  sync.Mutex
		out loaded
	)
	ch := l.queue.Enqueue(retry.Item{
		Key:     url,
		Attempt: n,
		Run: func(qctx context.Context) (string, error) {
			hit, err := l.fetchAll(qctx, url, sources)
			if err != nil {
				return "", err
			}
			mu.Lock()
			out = hit
			mu.Unlock()
			return hit.ref, nil
		},
	})
	select {
	case o := <-ch:
		if o.Err != nil {
			return loaded{}, o.Err
		}
		mu.Lock()
		defer mu.Unlock()
		return out, nil
	case <-ctx.Done():
		return loaded{}, ctx.Err()
	}
}

// fetchAll tries each source in order and persists the first usable body
// under url. Failed sources move on to the next one. When all fail, the last
// transient error is returned so the chain is retried, or else the last error.
func (l *Loader) fetchAll(ctx context.Context, url string, sources []string) (loaded, error) {
	var lastErr, transient error
	for _, src := range sources {
		hit, data, err := l.fetchOne(ctx, src)
		if err == nil {
			l.persist(url, data, hit.ref)
			return hit, nil
		}
		lastErr = err
		if Classify(err) == ClassTransient {
			transient = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if transient != nil {
		return loaded{}, transient
	}
	return loaded{}, lastErr
}

func (l *Loader) fetchOne(ctx context.Context, src string) (loaded, []byte, error) {
	fctx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	data, err := l.fetcher.Fetch(fctx, src)
	if err != nil {
		return loaded{}, nil, err
	}
	hit, err := decode(data)
	if err != nil {
		l.logger.Debug("rejected fetched content", slog.String("url", src), slog.Any("error", err))
		return loaded{}, nil, err
	}
	return hit, data, nil
}

// persist writes data to the store in the background. Failures are ignored.
func (l *Loader) persist(url string, data []byte, ref string) {
	bucket := cache.BucketVector
	if !isSVGRef(ref) {
		bucket = cache.BucketRaster
	}
	l.writes.Add(1)
	go func() {
		defer l.writes.Done()
		_ = l.store.Put(context.Background(), bucket, url, data) //nolint:errcheck // caching is opportunistic
	}()
}

// probe reads the store, giving up after the probe timeout.
func (l *Loader) probe(ctx context.Context, url string) (loaded, bool) {
	type result struct {
		hit loaded
		ok  bool
	}
	pctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		hit, ok := l.read(pctx, url)
		ch <- result{hit, ok}
	}()
	select {
	case r := <-ch:
		return r.hit, r.ok
	case <-pctx.Done():
		l.logger.Debug("store probe timed out", slog.String("url", url))
		return loaded{}, false
	}
}

// read looks url up in the vector bucket, then the raster bucket.
func (l *Loader) read(ctx context.Context, url string) (loaded, bool) {
	for _, b := range []cache.Bucket{cache.BucketVector, cache.BucketRaster} {
		data, ok := l.store.Get(ctx, b, url)
		if !ok {
			continue
		}
		hit, err := decode(data)
		if err != nil {
			l.logger.Debug("ignoring invalid stored entry", slog.String("url", url), slog.Any("error", err))
			continue
		}
		return hit, true
	}
	return loaded{}, false
}

// decode accepts a decodable PNG or WebP image, or otherwise validates data
// as SVG, and encodes it as a data URL.
func decode(data []byte) (loaded, error) {
	d := digest.FromBytes(data)
	if ref, err := rasterDataURL(data); err == nil {
		return loaded{ref: ref, digest: d}, nil
	}
	ref, err := validate.DataURL(data)
	if err != nil {
		return loaded{}, err
	}
	return loaded{ref: ref, digest: d}, nil
}

func isSVGRef(ref string) bool {
	return strings.HasPrefix(ref, "data:image/svg+xml")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
