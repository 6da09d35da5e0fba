package iconcache

import (
	"bytes"
	"encoding/base64"
	"image/png"
	nethttp "net/http"

	"golang.org/x/image/webp"
)

// rasterDataURL encodes a PNG or WebP image as a data URL. Content whose
// header does not decode returns ErrInvalidRaster.
func rasterDataURL(data []byte) (string, error) {
	var mime string
	switch nethttp.DetectContentType(data) {
	case "image/png":
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return "", ErrInvalidRaster
		}
		mime = "image/png"
	case "image/webp":
		if _, err := webp.DecodeConfig(bytes.NewReader(data)); err != nil {
			return "", ErrInvalidRaster
		}
		mime = "image/webp"
	default:
		return "", ErrInvalidRaster
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
