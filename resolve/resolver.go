// Package resolve turns icon references into canonical absolute URLs and
// rewrites well-known icon-host URLs to mirrors or a same-origin proxy.
//
// Resolution never fails: input that cannot be parsed is returned unchanged
// so later stages can still treat it as an opaque source.
package resolve

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// Runtime describes where resolved URLs will be consumed.
type Runtime int

const (
	// RuntimeHosted is a page served over http(s) that can reach a
	// same-origin proxy.
	RuntimeHosted Runtime = iota
	// RuntimeExtension is a browser-extension context; cross-origin fetches
	// are allowed directly.
	RuntimeExtension
	// RuntimeLocal is a non-http origin such as file://.
	RuntimeLocal
)

// ParseRuntime maps a config string to a Runtime. Unknown values map to
// RuntimeHosted.
func ParseRuntime(s string) Runtime {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extension":
		return RuntimeExtension
	case "local":
		return RuntimeLocal
	default:
		return RuntimeHosted
	}
}

// DefaultProxyPath is the same-origin endpoint used for cross-origin icons.
const DefaultProxyPath = "/api/icon-proxy"

// Resolver canonicalizes and rewrites icon URLs. It is safe for concurrent use.
type Resolver struct {
	base      *url.URL
	origin    string
	runtime   Runtime
	proxyPath string
	logger    *slog.Logger

	canonical sync.Map // string -> string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBase sets the base URL relative references resolve against.
// An unparsable or relative base is ignored.
func WithBase(base string) Option {
	return func(r *Resolver) {
		u, err := url.Parse(strings.TrimSpace(base))
		if err != nil || !u.IsAbs() {
			return
		}
		r.base = u
	}
}

// WithOrigin sets the host page origin used for same-origin checks.
func WithOrigin(origin string) Option {
	return func(r *Resolver) {
		r.origin = originOf(origin)
	}
}

// WithRuntime sets the runtime context.
func WithRuntime(rt Runtime) Option {
	return func(r *Resolver) {
		r.runtime = rt
	}
}

// WithProxyPath sets the same-origin proxy endpoint.
func WithProxyPath(path string) Option {
	return func(r *Resolver) {
		if path != "" {
			r.proxyPath = path
		}
	}
}

// WithLogger sets the logger for rewrite diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver.
// When no origin is given, the base URL's origin is used.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		proxyPath: DefaultProxyPath,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.origin == "" && r.base != nil {
		r.origin = originOf(r.base.String())
	}
	return r
}

// Runtime returns the configured runtime context.
func (r *Resolver) Runtime() Runtime {
	return r.runtime
}

// Origin returns the configured page origin, or "" if unknown.
func (r *Resolver) Origin() string {
	return r.origin
}

// IsInline reports whether ref is an embedded data or object reference.
func IsInline(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:")
}

func isRelativePath(ref string) bool {
	return strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../")
}

func isHTTP(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsURL reports whether ref is URL-shaped: an absolute http(s), data or
// blob URL, an explicit relative path, or anything that resolves against the
// configured base.
func (r *Resolver) IsURL(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if IsInline(ref) || isHTTP(ref) || isRelativePath(ref) {
		return true
	}
	if r.base == nil {
		return false
	}
	_, err := r.base.Parse(ref)
	return err == nil
}

// Fetchable reports whether ref resolves to an absolute http(s) URL with a
// host. Relative paths are fetchable only when a base or origin is set.
func (r *Resolver) Fetchable(ref string) bool {
	u, err := url.Parse(r.Canonical(ref))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Canonical returns the absolute form of ref. Results are memoized, and the
// absolute form is also memoized as its own canonical value.
func (r *Resolver) Canonical(ref string) string {
	if ref == "" {
		return ""
	}
	if v, ok := r.canonical.Load(ref); ok {
		return v.(string) //nolint:forcetypeassert // only strings are stored
	}
	resolved := r.canonicalize(ref)
	r.canonical.Store(ref, resolved)
	r.canonical.LoadOrStore(resolved, resolved)
	return resolved
}

func (r *Resolver) canonicalize(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if IsInline(trimmed) {
		return ref
	}
	if r.base != nil {
		u, err := r.base.Parse(trimmed)
		if err == nil {
			return u.String()
		}
	}
	u, err := url.Parse(trimmed)
	if err == nil && u.IsAbs() {
		return u.String()
	}
	if r.origin != "" {
		if o, oerr := url.Parse(r.origin); oerr == nil {
			if u, err := o.Parse(trimmed); err == nil {
				return u.String()
			}
		}
	}
	return ref
}

// SameOrigin reports whether raw is an absolute URL on the configured origin.
func (r *Resolver) SameOrigin(raw string) bool {
	if r.origin == "" {
		return false
	}
	return originOf(raw) == r.origin
}

// ProxyCrossOrigin rewrites a cross-origin http(s) URL to the same-origin
// proxy. Inline references, relative paths, same-origin URLs and anything on
// the extension runtime pass through unchanged. It returns false only when
// raw is empty or cannot be parsed.
func (r *Resolver) ProxyCrossOrigin(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if IsInline(trimmed) || isRelativePath(trimmed) || !isHTTP(trimmed) {
		return trimmed, true
	}
	if r.runtime == RuntimeExtension || r.origin == "" {
		return trimmed, true
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return "", false
	}
	if originOf(trimmed) == r.origin {
		return trimmed, true
	}
	return r.proxyPath + "?url=" + url.QueryEscape(trimmed), true
}

// originOf returns scheme://host for an absolute URL, or "".
func originOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
