package iconcache

import (
	"encoding/base64"
	"strings"
)

// FallbackSVG is the placeholder shown when an icon cannot be loaded: a
// rounded square with an exclamation mark.
const FallbackSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24" width="24" height="24">` +
	`<path fill="currentColor" fill-rule="evenodd" d="M6 2a4 4 0 0 0-4 4v12a4 4 0 0 0 4 4h12a4 4 0 0 0 4-4V6a4 4 0 0 0-4-4H6zm0 2h12a2 2 0 0 1 2 2v12a2 2 0 0 1-2 2H6a2 2 0 0 1-2-2V6a2 2 0 0 1 2-2z"/>` +
	`<path fill="currentColor" d="M11 7h2v7h-2z"/>` +
	`<path fill="currentColor" d="M11 16h2v2h-2z"/>` +
	`</svg>`

// FallbackRef is FallbackSVG as a data URL.
var FallbackRef = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(FallbackSVG))

// IsFallback reports whether ref is the placeholder.
func IsFallback(ref string) bool {
	return strings.TrimSpace(ref) == FallbackRef
}

func fallbackResult(err error) Result {
	return Result{Ref: FallbackRef, Origin: OriginFallback, Err: err}
}
