// Package http fetches icon assets over HTTP.
//
// Requests are plain GETs without cookies or credentials. Bodies are capped,
// and zstd or gzip content encodings are decoded transparently.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/iconcache/internal/sizing"
)

// DefaultMaxBytes caps response bodies.
const DefaultMaxBytes int64 = 1 << 20 // 1 MB

// Observer receives the outcome of every fetch. netstate.Monitor implements
// it to infer connectivity.
type Observer interface {
	Observe(latency time.Duration, err error)
}

// Fetcher performs GET requests for icon assets.
type Fetcher struct {
	client   *nethttp.Client
	headers  nethttp.Header
	maxBytes int64
	observer Observer
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if f.headers == nil {
			f.headers = make(nethttp.Header)
		}
		f.headers.Set(key, value)
	}
}

// WithMaxBytes sets the body size limit. Values <= 0 use DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// WithObserver registers an observer for fetch outcomes.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) {
		f.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   nethttp.DefaultClient,
		maxBytes: DefaultMaxBytes,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = nethttp.DefaultClient
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f
}

// Fetch GETs url and returns the decoded body.
//
// Non-2xx responses return a *StatusError. An empty body returns
// ErrEmptyBody and a body over the limit returns ErrTooLarge. A URL without
// an http(s) scheme and host returns ErrBadURL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	data, err := f.fetch(ctx, url)
	if f.observer != nil {
		f.observer.Observe(time.Since(start), err)
	}
	if err != nil {
		f.logger.Debug("fetch failed", slog.String("url", url), slog.Any("error", err))
	}
	return data, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := f.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	body, closeBody, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer closeBody()

	data, err := sizing.ReadAllWithLimit(body, uint64(f.maxBytes), ErrTooLarge) //nolint:gosec // maxBytes is positive
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}
	return data, nil
}

func (f *Fetcher) newRequest(ctx context.Context, url string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadURL, err)
	}
	if scheme := strings.ToLower(req.URL.Scheme); (scheme != "http" && scheme != "https") || req.URL.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadURL, url)
	}
	for key, values := range f.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "zstd, gzip, deflate")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "image/svg+xml, image/webp, image/png, */*;q=0.5")
	}
	return req, nil
}

// decodeBody wraps the response body according to its Content-Encoding.
func decodeBody(resp *nethttp.Response) (io.Reader, func(), error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return resp.Body, func() {}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("decode zstd body: %w", err)
		}
		return zr, zr.Close, nil
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("decode gzip body: %w", err)
		}
		return gr, func() { _ = gr.Close() }, nil
	case "deflate":
		fr := flate.NewReader(resp.Body)
		return fr, func() { _ = fr.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
