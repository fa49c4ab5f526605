package qrimage

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// PNG encodes content as a square QR image of size pixels.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("empty qr content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
