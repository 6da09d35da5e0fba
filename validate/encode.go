package validate

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	base64Prefix  = "data:image/svg+xml;base64,"
	percentPrefix = "data:image/svg+xml;charset=utf-8,"
)

type encoder func([]byte) (string, error)

// encoders are tried in order; the last one cannot fail.
var encoders = []encoder{encodeBase64Strict, encodeBase64Lossy}

// Encode returns data as an SVG data URL. It never fails: each encoder in the
// chain is tried in turn and a percent-encoded form is the final fallback.
func Encode(data []byte) string {
	for _, enc := range encoders {
		if out, err := tryEncode(enc, data); err == nil {
			return out
		}
	}
	return percentPrefix + PercentEncode(string(data))
}

func tryEncode(enc encoder, data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()
	return enc(data)
}

func encodeBase64Strict(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("content is not valid utf-8")
	}
	return base64Prefix + base64.StdEncoding.EncodeToString(data), nil
}

func encodeBase64Lossy(data []byte) (string, error) {
	text := strings.ToValidUTF8(string(data), string(utf8.RuneError))
	return base64Prefix + base64.StdEncoding.EncodeToString([]byte(text)), nil
}

// PercentEncode escapes s the way encodeURIComponent does: everything except
// ASCII letters, digits and -_.!~*'() is written as UTF-8 percent escapes.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
