// Package qrcode renders credential tokens as scannable PNG images. It is
// a thin shim over the QR library so nothing else in the service knows how
// the visual code is produced.
package qrcode

import (
	qr "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered edge length in pixels, large enough for a
// printed card.
const DefaultSize = 400

// RenderPNG encodes a token as a QR PNG with medium error correction.
func RenderPNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qr.Encode(token, qr.Medium, size)
}
