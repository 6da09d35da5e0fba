package resolve

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidName is returned when an icon name cannot be turned into a safe
// asset file name.
var ErrInvalidName = errors.New("resolve: invalid icon name")

var (
	separatorRE = regexp.MustCompile(`[_\s]+`)
	lowerUpper  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	acronymWord = regexp.MustCompile(`([A-Z])([A-Z][a-z])`)
)

// KebabName converts camelCase, snake_case or spaced names to kebab-case.
//
//	"arrowRight"   -> "arrow-right"
//	"HTMLParser"   -> "html-parser"
//	"folder_open"  -> "folder-open"
func KebabName(name string) string {
	s := separatorRE.ReplaceAllString(strings.TrimSpace(name), "-")
	s = lowerUpper.ReplaceAllString(s, "$1-$2")
	s = acronymWord.ReplaceAllString(s, "$1-$2")
	return strings.ToLower(s)
}

// NormalizeStyle lowercases style and falls back to DefaultStyle when it is
// not one of Styles.
func NormalizeStyle(style string) string {
	s := strings.ToLower(strings.TrimSpace(style))
	if !ValidStyle(s) {
		return DefaultStyle
	}
	return s
}

// IconURLs lists the sources for one icon, in the order they are tried.
type IconURLs struct {
	Name  string
	Style string

	// Direct is the public CDN URL.
	Direct string
	// Proxy is the same-origin proxy path. It is relative, so it is only
	// fetchable through a Resolver with an origin or base.
	Proxy string
	// Local is an optional self-hosted URL under a caller-supplied base.
	Local string
}

// Candidates returns the non-empty sources in try order.
func (u IconURLs) Candidates() []string {
	out := []string{u.Direct, u.Proxy}
	if u.Local != "" {
		out = append(out, u.Local)
	}
	return out
}

// ForIcon builds the source URLs for an icon name and style. The base, when
// set, is a self-hosted directory laid out as <base>/<style>/<file>.svg.
func ForIcon(name, style, base string) (IconURLs, error) {
	kebab := KebabName(name)
	if kebab == "" || !ValidName(kebab) {
		return IconURLs{}, ErrInvalidName
	}
	style = NormalizeStyle(style)
	urls := IconURLs{
		Name:   kebab,
		Style:  style,
		Direct: npmAssetURL(style, kebab),
		Proxy:  proxyAssetPath(style, kebab),
	}
	if b := strings.TrimRight(strings.TrimSpace(base), "/"); b != "" {
		urls.Local = b + "/" + style + "/" + assetFileName(style, kebab) + ".svg"
	}
	return urls, nil
}
