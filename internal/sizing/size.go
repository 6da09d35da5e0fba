// Package sizing provides size bucket quantization and bounded reads.
package sizing

import (
	"io"
	"math"
)

// Raster size bounds, in device pixels.
const (
	MinBucket = 32
	MaxBucket = 512
)

// Bucket quantizes a pixel dimension to a power of two within
// [MinBucket, MaxBucket]. Non-finite and non-positive sizes map to MinBucket.
func Bucket(px float64) int {
	if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
		px = MinBucket
	}
	if px < MinBucket {
		px = MinBucket
	}
	if px >= MaxBucket {
		return MaxBucket
	}
	b := 1 << uint(math.Ceil(math.Log2(px)))
	// Log2 can land a hair under an exact power for large inputs.
	if float64(b) < px {
		b <<= 1
	}
	return min(b, MaxBucket)
}

// IsBucket reports whether n is a value Bucket can return.
func IsBucket(n int) bool {
	return n >= MinBucket && n <= MaxBucket && n&(n-1) == 0
}

// ReadAllWithLimit reads up to maxSize bytes from r.
// Returns overflowErr if more than maxSize bytes are available.
func ReadAllWithLimit(r io.Reader, maxSize uint64, overflowErr error) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, overflowErr
	}
	limit := int64(maxSize) + 1 //nolint:gosec // checked above
	lr := &io.LimitedReader{R: r, N: limit}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize { //nolint:gosec // len is always non-negative
		return nil, overflowErr
	}
	return data, nil
}
