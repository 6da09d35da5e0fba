// Package cache defines the persistent asset store used by the icon loader.
//
// Stores are split into two independent buckets by asset kind: vector (SVG
// text) and raster (PNG/WebP). Every store failure is soft: callers treat an
// unavailable store as a cache miss and never surface its errors to the UI.
package cache

import (
	"context"
	"errors"
)

// Bucket names an independent group of stored assets.
type Bucket string

// Known buckets.
const (
	BucketVector Bucket = "vector"
	BucketRaster Bucket = "raster"
)

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	return b == BucketVector || b == BucketRaster
}

// ErrUnavailable is returned by stores whose backing storage cannot be used.
var ErrUnavailable = errors.New("cache: store unavailable")

// ErrInvalidBucket is returned for a bucket other than vector or raster.
var ErrInvalidBucket = errors.New("cache: invalid bucket")

// Stats summarizes store contents.
type Stats struct {
	VectorCount int
	RasterCount int
	TotalBytes  int64
}

// Store provides durable, namespaced storage for validated assets.
//
// Keys are canonical source identifiers; implementations sanitize them into
// storage names. Implementations must be safe for concurrent use.
type Store interface {
	// Init prepares the store. It is idempotent and concurrent callers
	// observe a single initialization.
	Init(ctx context.Context) error

	// Put stores data under key, replacing any existing entry.
	Put(ctx context.Context, bucket Bucket, key string, data []byte) error

	// Get returns the stored bytes for key.
	// Returns nil, false if the entry does not exist or cannot be read.
	Get(ctx context.Context, bucket Bucket, key string) ([]byte, bool)

	// Stats returns per-bucket counts and the total stored size.
	Stats(ctx context.Context) (Stats, error)

	// ValidateAndClean removes entries that fail a cheap content check and
	// returns how many were removed.
	ValidateAndClean(ctx context.Context) (int, error)

	// Clear removes every stored entry.
	Clear(ctx context.Context) error
}

// Noop is a Store that stores nothing. It stands in for a store whose
// backing storage is unavailable, so callers keep working without durability.
type Noop struct{}

// Interface compliance.
var _ Store = Noop{}

// Init implements Store.
func (Noop) Init(context.Context) error { return nil }

// Put implements Store; data is discarded.
func (Noop) Put(context.Context, Bucket, string, []byte) error { return nil }

// Get implements Store; it always misses.
func (Noop) Get(context.Context, Bucket, string) ([]byte, bool) { return nil, false }

// Stats implements Store.
func (Noop) Stats(context.Context) (Stats, error) { return Stats{}, nil }

// ValidateAndClean implements Store.
func (Noop) ValidateAndClean(context.Context) (int, error) { return 0, nil }

// Clear implements Store.
func (Noop) Clear(context.Context) error { return nil }
