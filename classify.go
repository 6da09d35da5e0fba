package iconcache

import (
	"errors"

	iconhttp "github.com/meigma/iconcache/http"
	"github.com/meigma/iconcache/validate"
)

// Class groups load failures by how the loader reacts to them.
type Class int

const (
	// ClassNone means no failure.
	ClassNone Class = iota
	// ClassTransient failures may succeed later and are retried.
	ClassTransient
	// ClassClient failures are permanent rejections by the source.
	ClassClient
	// ClassInvalid failures mean the source answered with unusable content.
	// The loader moves to the next mirror.
	ClassInvalid
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassClient:
		return "client"
	case ClassInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Classify maps a load failure to its Class. Timeouts, transport failures,
// 408, 429 and 5xx responses are transient; other 4xx responses are client
// failures, as are URLs that cannot be requested at all; empty, oversized
// and malformed bodies are invalid.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var se *iconhttp.StatusError
	if errors.As(err, &se) {
		if se.Client() {
			return ClassClient
		}
		return ClassTransient
	}
	if errors.Is(err, iconhttp.ErrBadURL) {
		return ClassClient
	}
	switch {
	case errors.Is(err, validate.ErrInvalidSVG),
		errors.Is(err, ErrInvalidRaster),
		errors.Is(err, iconhttp.ErrTooLarge),
		errors.Is(err, iconhttp.ErrEmptyBody):
		return ClassInvalid
	default:
		return ClassTransient
	}
}
