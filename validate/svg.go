// Package validate checks fetched vector icon content before it is cached or
// embedded, and encodes accepted content as an inline data URL.
package validate

import (
	"bytes"
	"regexp"
	"unicode/utf8"
)

// Size bounds for accepted SVG content, measured after trimming whitespace.
const (
	MinSize = 50
	MaxSize = 1 << 20
)

var (
	openTagRE      = regexp.MustCompile(`<[^/?][^>]*>`)
	closeTagRE     = regexp.MustCompile(`</[^>]+>`)
	selfClosingTRE = regexp.MustCompile(`<[^>]+/>`)
)

// SVG reports whether data looks like a complete, bounded SVG document.
// The checks run in order and the first failure is returned.
func SVG(data []byte) error {
	if len(data) == 0 {
		return reject("empty content")
	}
	if !utf8.Valid(data) {
		return reject("not valid utf-8 text")
	}
	trimmed := bytes.TrimSpace(data)
	if !bytes.Contains(trimmed, []byte("<svg")) || !bytes.Contains(trimmed, []byte("</svg>")) {
		return reject("missing svg tags")
	}
	if len(trimmed) < MinSize {
		return reject("content too small")
	}
	if len(trimmed) > MaxSize {
		return reject("content too large")
	}
	open := len(openTagRE.FindAllIndex(trimmed, -1))
	closing := len(closeTagRE.FindAllIndex(trimmed, -1))
	selfClosing := len(selfClosingTRE.FindAllIndex(trimmed, -1))
	if open+selfClosing < closing {
		return reject("unbalanced tags")
	}
	return nil
}

// Quick is the cheap subset of SVG used when sweeping stored entries:
// content must be non-empty and start with an svg or xml prolog tag.
func Quick(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	return bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.HasPrefix(trimmed, []byte("<?xml"))
}

// DataURL validates data and returns it as an inline data URL.
func DataURL(data []byte) (string, error) {
	if err := SVG(data); err != nil {
		return "", err
	}
	return Encode(data), nil
}
