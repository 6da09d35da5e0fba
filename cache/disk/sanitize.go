package disk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"
)

const maxKeyLen = 200

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
)

// sanitizeKey maps a canonical source identifier to a file name stem.
//
// Unsafe characters and dot runs become "_" and a leading dot is replaced.
// Whenever that changes the key, or the key is longer than maxKeyLen, a short
// digest of the original key is appended so distinct keys never share a stem.
func sanitizeKey(key string) string {
	s := unsafeChars.ReplaceAllString(key, "_")
	s = dotRuns.ReplaceAllString(s, "_")
	if strings.HasPrefix(s, ".") {
		s = "_" + s[1:]
	}
	if s != key || len(s) > maxKeyLen {
		suffix := "~" + keyDigest(key)
		s = truncateUTF8(s, maxKeyLen-len(suffix)) + suffix
	}
	if s == "" {
		return "_empty_"
	}
	return s
}

func keyDigest(key string) string {
	return digest.FromString(key).Encoded()[:16]
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
