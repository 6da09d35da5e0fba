package iconcache

import (
	"errors"

	"github.com/meigma/iconcache/cache"
	iconhttp "github.com/meigma/iconcache/http"
	"github.com/meigma/iconcache/resolve"
	"github.com/meigma/iconcache/retry"
	"github.com/meigma/iconcache/validate"
)

// Errors re-exported from subpackages.
var (
	// ErrInvalidIconName is returned when an icon name cannot form a safe
	// asset path.
	ErrInvalidIconName = resolve.ErrInvalidName

	// ErrInvalidSVG is returned when fetched content fails validation.
	ErrInvalidSVG = validate.ErrInvalidSVG

	// ErrEmptyBody is returned when a source responds with no content.
	ErrEmptyBody = iconhttp.ErrEmptyBody

	// ErrTooLarge is returned when a source responds with an oversized body.
	ErrTooLarge = iconhttp.ErrTooLarge

	// ErrOffline is reported when retries were dropped while offline.
	ErrOffline = retry.ErrOffline

	// ErrStoreUnavailable is returned by stores that cannot be used.
	ErrStoreUnavailable = cache.ErrUnavailable
)

// Sentinel errors specific to the iconcache package.
var (
	// ErrEmptyRef is reported for an empty reference.
	ErrEmptyRef = errors.New("iconcache: empty reference")

	// ErrInvalidRaster is returned when content is neither SVG nor a
	// decodable PNG or WebP image.
	ErrInvalidRaster = errors.New("iconcache: invalid raster image")
)
