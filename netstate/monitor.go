// Package netstate infers connectivity from fetch outcomes.
//
// A Monitor goes offline after a run of consecutive transport failures and
// comes back online on the next response of any kind. It reports a slow
// connection when the smoothed response latency crosses a threshold.
package netstate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	iconhttp "github.com/meigma/iconcache/http"
)

const (
	defaultOfflineAfter  = 3
	defaultSlowThreshold = 2 * time.Second
	smoothing            = 0.3
)

// Monitor tracks connectivity. It is safe for concurrent use and implements
// both the fetch observer and the retry queue's connectivity view.
type Monitor struct {
	offlineAfter  int
	slowThreshold time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	failures int
	online   bool
	forced   *bool
	latency  time.Duration // exponentially weighted
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithOfflineAfter sets how many consecutive transport failures mark the
// connection offline.
func WithOfflineAfter(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.offlineAfter = n
		}
	}
}

// WithSlowThreshold sets the smoothed latency above which the connection is
// considered slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.slowThreshold = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Monitor that starts online.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		offlineAfter:  defaultOfflineAfter,
		slowThreshold: defaultSlowThreshold,
		logger:        slog.New(slog.DiscardHandler),
		online:        true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe records a fetch outcome. Cancelled requests are ignored.
func (m *Monitor) Observe(latency time.Duration, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil && transportFailure(err) {
		m.failures++
		if m.online && m.failures >= m.offlineAfter {
			m.online = false
			m.logger.Info("network appears offline", slog.Int("failures", m.failures))
		}
		return
	}

	if !m.online {
		m.logger.Info("network back online")
	}
	m.failures = 0
	m.online = true
	if m.latency == 0 {
		m.latency = latency
		return
	}
	m.latency = time.Duration(smoothing*float64(latency) + (1-smoothing)*float64(m.latency))
}

// Online reports whether the network is believed reachable.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forced != nil {
		return *m.forced
	}
	return m.online
}

// Slow reports whether recent responses have been slow.
func (m *Monitor) Slow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency > m.slowThreshold
}

// SetOnline overrides the inferred state, as an OS connectivity event would.
// Passing nil returns to inference.
func (m *Monitor) SetOnline(online *bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = online
}

// transportFailure reports whether a request went out and no response came
// back: a dial, DNS or read failure, or a deadline. Status and content
// errors prove the network works, and a URL that could not be requested says
// nothing about it.
func transportFailure(err error) bool {
	if errors.Is(err, iconhttp.ErrBadURL) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if !errors.As(err, &ue) {
		return false
	}
	var ne net.Error
	return errors.As(ue.Err, &ne)
}
