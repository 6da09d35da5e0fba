package retry

import "errors"

var (
	// ErrOffline is delivered to items dropped because the network is offline.
	ErrOffline = errors.New("retry: network offline")

	// ErrClosed is delivered to items pending when the queue closes, and to
	// items enqueued after Close.
	ErrClosed = errors.New("retry: queue closed")

	// ErrExhausted is delivered to items whose attempt number exceeds the
	// queue's maximum.
	ErrExhausted = errors.New("retry: attempts exhausted")
)
