// Package testutil provides fixtures shared by icon loading tests.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/meigma/iconcache/cache"
)

// SVG returns a valid icon document whose path data includes tag, so
// distinct fixtures produce distinct bytes.
func SVG(tag string) []byte {
	return fmt.Appendf(nil,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 256 256"><path d="M0 0h256v256H0z" data-tag=%q/></svg>`, tag)
}

// Server is an httptest server that counts requests per path.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]*atomic.Int64
}

// NewServer starts a Server that answers 404 for unknown paths.
// The server is closed when the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]*atomic.Int64),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.counter(r.URL.Path).Add(1)
	s.mu.Lock()
	h := s.handlers[r.URL.Path]
	s.mu.Unlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (s *Server) counter(path string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.hits[path]
	if !ok {
		c = new(atomic.Int64)
		s.hits[path] = c
	}
	return c
}

// Handle sets the handler for path.
func (s *Server) Handle(path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
}

// Serve answers path with body.
func (s *Server) Serve(path string, body []byte) {
	s.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})
}

// Status answers path with an empty response carrying code.
func (s *Server) Status(path string, code int) {
	s.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

// URL returns the absolute URL of path on the server.
func (s *Server) URL(path string) string {
	return s.Server.URL + "/" + strings.TrimPrefix(path, "/")
}

// Hits returns how many requests path has received.
func (s *Server) Hits(path string) int64 {
	return s.counter(path).Load()
}

// Connectivity is a settable network state.
type Connectivity struct {
	online atomic.Bool
	slow   atomic.Bool
}

// NewConnectivity returns a Connectivity reporting online.
func NewConnectivity() *Connectivity {
	c := &Connectivity{}
	c.online.Store(true)
	return c
}

// Online reports the configured state.
func (c *Connectivity) Online() bool { return c.online.Load() }

// Slow reports the configured state.
func (c *Connectivity) Slow() bool { return c.slow.Load() }

// SetOnline changes the reported state.
func (c *Connectivity) SetOnline(v bool) { c.online.Store(v) }

// SetSlow changes the reported state.
func (c *Connectivity) SetSlow(v bool) { c.slow.Store(v) }

// MemoryStore is a concurrency-safe in-memory cache.Store that counts calls.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[cache.Bucket]map[string][]byte

	Puts atomic.Int64
	Gets atomic.Int64
}

var _ cache.Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[cache.Bucket]map[string][]byte{
		cache.BucketVector: {},
		cache.BucketRaster: {},
	}}
}

// Init implements cache.Store.
func (m *MemoryStore) Init(context.Context) error { return nil }

// Put implements cache.Store.
func (m *MemoryStore) Put(_ context.Context, bucket cache.Bucket, key string, data []byte) error {
	if !bucket.Valid() {
		return cache.ErrInvalidBucket
	}
	m.Puts.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket][key] = append([]byte(nil), data...)
	return nil
}

// Get implements cache.Store.
func (m *MemoryStore) Get(_ context.Context, bucket cache.Bucket, key string) ([]byte, bool) {
	m.Gets.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[bucket][key]
	return data, ok && len(data) > 0
}

// Stats implements cache.Store.
func (m *MemoryStore) Stats(context.Context) (cache.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st cache.Stats
	for b, entries := range m.data {
		for _, d := range entries {
			st.TotalBytes += int64(len(d))
		}
		if b == cache.BucketVector {
			st.VectorCount = len(entries)
		} else {
			st.RasterCount = len(entries)
		}
	}
	return st, nil
}

// ValidateAndClean implements cache.Store; nothing is removed.
func (m *MemoryStore) ValidateAndClean(context.Context) (int, error) { return 0, nil }

// Clear implements cache.Store.
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entries := range m.data {
		clear(entries)
	}
	return nil
}
