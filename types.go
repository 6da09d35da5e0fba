package iconcache

import (
	"github.com/opencontainers/go-digest"

	"github.com/meigma/iconcache/internal/sizing"
)

// Origin names the tier that produced a Result.
type Origin int

// Origins, roughly in the order they are consulted.
const (
	// OriginFallback is the built-in placeholder.
	OriginFallback Origin = iota
	// OriginInline is a reference that needed no loading.
	OriginInline
	// OriginRule is a reference taken from an already registered rule.
	OriginRule
	// OriginMemory is the in-process tier.
	OriginMemory
	// OriginStore is a fresh read from the persistent store.
	OriginStore
	// OriginNetwork is a successful fetch.
	OriginNetwork
	// OriginStale is a store read made after every network source failed.
	OriginStale
)

var originNames = [...]string{"fallback", "inline", "rule", "memory", "store", "network", "stale"}

func (o Origin) String() string {
	if o < 0 || int(o) >= len(originNames) {
		return "unknown"
	}
	return originNames[o]
}

// Result is the outcome of a load. Ref is always displayable.
type Result struct {
	// Ref is an inline data URL, a pass-through reference or the fallback.
	Ref string
	// Origin is the tier that produced Ref.
	Origin Origin
	// Digest identifies the loaded bytes when they are known.
	Digest digest.Digest
	// Err is the last failure seen while loading. It is informational;
	// Ref is usable regardless.
	Err error
}

// Fallback reports whether the result is the built-in placeholder.
func (r Result) Fallback() bool {
	return r.Origin == OriginFallback
}

// Request describes an icon to resolve. Set Name for a logical icon, or Ref
// for a raw reference.
type Request struct {
	Name    string
	Variant string
	// Size is the display size in pixels. It is quantized with Bucket.
	Size float64
	// Base is an optional self-hosted icon directory tried after the CDN
	// and the proxy.
	Base string

	Ref string
}

// Size bucket bounds.
const (
	MinBucket = sizing.MinBucket
	MaxBucket = sizing.MaxBucket
)

// Bucket quantizes a pixel size to a power of two in [MinBucket, MaxBucket].
// Non-finite and non-positive sizes map to MinBucket.
func Bucket(px float64) int {
	return sizing.Bucket(px)
}
