// Package retry schedules delayed re-attempts of failed work.
//
// Items are drained in small batches. Each item in a batch waits an
// exponential backoff based on its attempt number before it runs, and the
// next batch is scheduled after the base delay (doubled on slow connections).
// When the network is offline the whole queue is dropped instead.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Defaults for queue tuning.
const (
	DefaultBaseDelay     = time.Second
	DefaultBatchSize     = 2
	DefaultMaxAttempts   = 5
	DefaultBackoffFactor = 1.5
)

// Connectivity reports the current network state.
type Connectivity interface {
	Online() bool
	Slow() bool
}

// Item is one unit of work to re-attempt.
type Item struct {
	// Key identifies the work in logs.
	Key string
	// Attempt is the 1-based retry number. The first retry waits the base
	// delay.
	Attempt int
	// Run performs the attempt.
	Run func(ctx context.Context) (string, error)
}

// Outcome is the result of a queued item.
type Outcome struct {
	Value string
	Err   error
}

type pending struct {
	item Item
	done chan Outcome
}

func (p *pending) deliver(o Outcome) {
	p.done <- o
}

// Queue holds items awaiting a retry. It is safe for concurrent use.
type Queue struct {
	baseDelay   time.Duration
	batchSize   int
	maxAttempts int
	factor      float64
	conn        Connectivity
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	items  []*pending
	timer  *time.Timer
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithBaseDelay sets the delay between batches and the backoff base.
func WithBaseDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.baseDelay = d
		}
	}
}

// WithBatchSize sets how many items run per drain.
func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithMaxAttempts sets the highest attempt number the queue accepts.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithBackoffFactor sets the exponential backoff multiplier.
func WithBackoffFactor(f float64) Option {
	return func(q *Queue) {
		if f >= 1 {
			q.factor = f
		}
	}
}

// WithConnectivity sets the network state source. Without one the queue
// assumes a fast, online network.
func WithConnectivity(c Connectivity) Option {
	return func(q *Queue) {
		q.conn = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates a Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		baseDelay:   DefaultBaseDelay,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		factor:      DefaultBackoffFactor,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q
}

// MaxAttempts returns the highest attempt number the queue accepts.
func (q *Queue) MaxAttempts() int {
	return q.maxAttempts
}

// Delay returns the backoff before an item with the given attempt number runs.
func (q *Queue) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(q.baseDelay) * math.Pow(q.factor, float64(attempt-1)))
}

// Enqueue adds item and schedules a drain if none is pending. The returned
// channel receives exactly one Outcome.
func (q *Queue) Enqueue(item Item) <-chan Outcome {
	p := &pending{item: item, done: make(chan Outcome, 1)}
	if item.Attempt > q.maxAttempts {
		p.deliver(Outcome{Err: ErrExhausted})
		return p.done
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		p.deliver(Outcome{Err: ErrClosed})
		return p.done
	}
	q.items = append(q.items, p)
	if q.timer == nil {
		q.timer = time.AfterFunc(q.baseDelay, q.drain)
	}
	return p.done
}

// Len returns the number of items waiting for a drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close drops pending items with ErrClosed, cancels running items and waits
// for them to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	dropped := q.items
	q.items = nil
	q.mu.Unlock()

	for _, p := range dropped {
		p.deliver(Outcome{Err: ErrClosed})
	}
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.timer = nil
	if q.closed || len(q.items) == 0 {
		return
	}

	if q.conn != nil && !q.conn.Online() {
		dropped := q.items
		q.items = nil
		q.logger.Info("network offline, dropping retries", slog.Int("count", len(dropped)))
		for _, p := range dropped {
			p.deliver(Outcome{Err: ErrOffline})
		}
		return
	}

	n := min(q.batchSize, len(q.items))
	batch := q.items[:n]
	q.items = q.items[n:]
	for _, p := range batch {
		q.wg.Add(1)
		go q.run(p)
	}

	if len(q.items) > 0 {
		next := q.baseDelay
		if q.conn != nil && q.conn.Slow() {
			next *= 2
		}
		q.timer = time.AfterFunc(next, q.drain)
	}
}

func (q *Queue) run(p *pending) {
	defer q.wg.Done()

	delay := q.Delay(p.item.Attempt)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-q.ctx.Done():
		p.deliver(Outcome{Err: ErrClosed})
		return
	}

	q.logger.Debug("retrying", slog.String("key", p.item.Key), slog.Int("attempt", p.item.Attempt))
	defer func() {
		if r := recover(); r != nil {
			p.deliver(Outcome{Err: fmt.Errorf("retry %s panicked: %v", p.item.Key, r)})
		}
	}()
	v, err := p.item.Run(q.ctx)
	p.deliver(Outcome{Value: v, Err: err})
}
