package sizing

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		px   float64
		want int
	}{
		{px: 0, want: 32},
		{px: -4, want: 32},
		{px: math.NaN(), want: 32},
		{px: math.Inf(1), want: 32},
		{px: 1, want: 32},
		{px: 32, want: 32},
		{px: 33, want: 64},
		{px: 40, want: 64},
		{px: 64, want: 64},
		{px: 64.5, want: 128},
		{px: 257, want: 512},
		{px: 512, want: 512},
		{px: 4096, want: 512},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.px), "Bucket(%v)", tt.px)
	}
}

func TestBucketIdempotent(t *testing.T) {
	t.Parallel()

	for px := -10.0; px <= 1100; px += 0.75 {
		b := Bucket(px)
		require.True(t, IsBucket(b), "Bucket(%v) = %d is not a bounded power of two", px, b)
		require.Equal(t, b, Bucket(float64(b)), "Bucket not idempotent at %v", px)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	errBig := errors.New("too big")

	data, err := ReadAllWithLimit(bytes.NewReader([]byte("abcd")), 4, errBig)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	_, err = ReadAllWithLimit(bytes.NewReader([]byte("abcde")), 4, errBig)
	assert.ErrorIs(t, err, errBig)
}
