package resolve

import (
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

const (
	cdnHost       = "cdn.jsdelivr.net"
	mirrorHost    = "unpkg.com"
	npmPrefix     = "https://cdn.jsdelivr.net/npm/"
	npmAssetsBase = "https://cdn.jsdelivr.net/npm/@phosphor-icons/core@2/assets/"
	proxyAssets   = "/assets/icons/phosphor/"
	ghPrefix      = "/gh/phosphor-icons/phosphor-icons/"
	npmPkgPrefix  = "/npm/@phosphor-icons/"
)

// Styles lists the accepted icon variants.
var Styles = []string{"thin", "light", "regular", "bold", "fill", "duotone"}

// DefaultStyle is used when a variant is missing or not recognized.
const DefaultStyle = "duotone"

var iconNameRE = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidStyle reports whether style is one of Styles.
func ValidStyle(style string) bool {
	return slices.Contains(Styles, style)
}

// ValidName reports whether name uses only lowercase letters, digits and dashes.
func ValidName(name string) bool {
	return iconNameRE.MatchString(name)
}

// assetFileName returns the CDN file stem for an icon in a style.
func assetFileName(style, name string) string {
	switch style {
	case "duotone":
		return name + "-duotone"
	case "regular":
		return name
	default:
		return name + "-" + style
	}
}

// npmAssetURL returns the direct CDN URL for an icon.
func npmAssetURL(style, name string) string {
	return npmAssetsBase + style + "/" + assetFileName(style, name) + ".svg"
}

// proxyAssetPath returns the same-origin proxy path for an icon.
func proxyAssetPath(style, name string) string {
	return proxyAssets + style + "/" + name + ".svg"
}

// Rewrite maps known icon-host URLs to the host appropriate for the runtime.
//
// Extension and local runtimes cannot use the same-origin proxy, so proxy
// paths are rewritten to the CDN. Hosted runtimes with a known origin prefer
// the proxy for CDN URLs. Style and name must pass ValidStyle and ValidName; otherwise, and on
// any parse failure, the input is returned unchanged.
func (r *Resolver) Rewrite(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return raw
	}
	out := r.rewrite(u)
	if out == "" {
		return raw
	}
	if out != raw {
		r.logger.Debug("rewrote icon url", slog.String("from", raw), slog.String("to", out))
	}
	return out
}

func (r *Resolver) rewrite(u *url.URL) string {
	hosted := r.runtime == RuntimeHosted
	path := u.Path

	if !hosted && strings.HasPrefix(path, proxyAssets) {
		parts := splitPath(path)
		style := DefaultStyle
		if len(parts) > 3 && parts[3] != "" {
			style = parts[3]
		}
		var file string
		if len(parts) > 4 {
			file = parts[4]
		}
		name := trimSVGExt(file)
		if ValidStyle(style) && name != "" && ValidName(name) {
			return npmAssetURL(style, name)
		}
		return ""
	}

	if !strings.EqualFold(u.Hostname(), cdnHost) {
		return ""
	}
	var marker string
	switch {
	case strings.HasPrefix(path, ghPrefix):
		marker = "src"
	case strings.HasPrefix(path, npmPkgPrefix):
		marker = "assets"
	default:
		return ""
	}

	parts := splitPath(path)
	idx := slices.Index(parts, marker)
	if idx < 0 || len(parts) < idx+3 {
		return ""
	}
	style, file := parts[idx+1], parts[idx+2]
	if style == "" || !strings.HasSuffix(strings.ToLower(file), ".svg") {
		return ""
	}
	name := trimSVGExt(file)
	switch {
	case style == "duotone":
		name = strings.TrimSuffix(name, "-duotone")
	case style != "regular":
		name = strings.TrimSuffix(name, "-"+style)
	}
	if !ValidStyle(style) || name == "" || !ValidName(name) {
		return ""
	}
	if hosted {
		if r.origin == "" {
			return ""
		}
		return proxyAssetPath(style, name)
	}
	return npmAssetURL(style, name)
}

// Mirrors returns raw followed by equivalent URLs on alternate hosts, without
// duplicates. Only jsdelivr URLs have mirrors.
func Mirrors(raw string) []string {
	candidates := []string{raw}
	if strings.HasPrefix(raw, npmPrefix) {
		candidates = append(candidates, strings.Replace(raw, npmPrefix, "https://"+mirrorHost+"/", 1))
	}
	if strings.HasPrefix(raw, "https://") && strings.Contains(raw, cdnHost) {
		m := strings.Replace(raw, cdnHost, mirrorHost, 1)
		m = strings.Replace(m, "/npm/", "/", 1)
		if !slices.Contains(candidates, m) {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

func splitPath(p string) []string {
	var parts []string
	for seg := range strings.SplitSeq(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func trimSVGExt(file string) string {
	if len(file) >= 4 && strings.EqualFold(file[len(file)-4:], ".svg") {
		return file[:len(file)-4]
	}
	return file
}
