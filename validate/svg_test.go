package validate

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// svgOfLen returns a well-formed svg document of exactly n bytes.
func svgOfLen(n int) []byte {
	const shell = `<svg a=""></svg>`
	return []byte(`<svg a="` + strings.Repeat("x", n-len(shell)) + `"></svg>`)
}

func TestSVGSizeBoundaries(t *testing.T) {
	t.Parallel()

	require.Len(t, svgOfLen(49), 49)
	require.Len(t, svgOfLen(50), 50)

	err := SVG(svgOfLen(49))
	require.ErrorIs(t, err, ErrInvalidSVG)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content too small", verr.Reason)

	assert.NoError(t, SVG(svgOfLen(50)))
	assert.NoError(t, SVG(svgOfLen(MaxSize)))
	assert.ErrorIs(t, SVG(svgOfLen(MaxSize+1)), ErrInvalidSVG)
}

func TestSVGRejects(t *testing.T) {
	t.Parallel()

	pad := strings.Repeat("p", 60)
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{name: "empty", data: nil, reason: "empty content"},
		{name: "binary", data: []byte{0xff, 0xfe, 0xfd}, reason: "not valid utf-8 text"},
		{name: "html", data: []byte("<html><body>" + pad + "</body></html>"), reason: "missing svg tags"},
		{name: "unclosed", data: []byte(`<svg a="` + pad + `">`), reason: "missing svg tags"},
		{
			name:   "unbalanced",
			data:   []byte(`<svg a="` + pad + `"><g></g></g></g></g></svg>`),
			reason: "unbalanced tags",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var verr *Error
			require.ErrorAs(t, SVG(tt.data), &verr)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestSVGAcceptsSelfClosingAndProlog(t *testing.T) {
	t.Parallel()

	doc := `  <?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 256 256"><path d="M0 0h256v256H0z"/><circle r="4"/></svg>
`
	assert.NoError(t, SVG([]byte(doc)))
	assert.True(t, Quick([]byte(doc)))
}

func TestQuick(t *testing.T) {
	t.Parallel()

	assert.False(t, Quick(nil))
	assert.False(t, Quick([]byte("   ")))
	assert.False(t, Quick([]byte("<html></html>")))
	assert.True(t, Quick([]byte("\n<svg></svg>")))
}

func TestDataURL(t *testing.T) {
	t.Parallel()

	doc := svgOfLen(80)
	got, err := DataURL(doc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, base64Prefix))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, base64Prefix))
	require.NoError(t, err)
	assert.Equal(t, doc, decoded)

	_, err = DataURL([]byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidSVG)
}

func TestEncodeFallbackChain(t *testing.T) { //nolint:paralleltest // swaps package encoders
	saved := encoders
	t.Cleanup(func() { encoders = saved })

	doc := []byte(`<svg a="b c"></svg>`)

	encoders = []encoder{
		func([]byte) (string, error) { panic("boom") },
		encodeBase64Lossy,
	}
	assert.True(t, strings.HasPrefix(Encode(doc), base64Prefix))

	encoders = []encoder{
		func([]byte) (string, error) { panic("boom") },
		func([]byte) (string, error) { return "", errors.New("fail") },
	}
	assert.Equal(t, percentPrefix+"%3Csvg%20a%3D%22b%20c%22%3E%3C%2Fsvg%3E", Encode(doc))
}

func TestEncodeInvalidUTF8FallsBack(t *testing.T) {
	t.Parallel()

	got := Encode([]byte{'<', 's', 0xff, '>'})
	require.True(t, strings.HasPrefix(got, base64Prefix))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, base64Prefix))
	require.NoError(t, err)
	assert.Equal(t, "<s�>", string(decoded))
}

func TestPercentEncode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a-b_c.d!e~f*g'h(i)j", PercentEncode("a-b_c.d!e~f*g'h(i)j"))
	assert.Equal(t, "%20%2F%3F%23%C3%A9", PercentEncode(" /?#é"))
}
