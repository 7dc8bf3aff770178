package qrcode

import (
	"errors"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 512
	MinSize     = 128
	MaxSize     = 2048
)

// PNG renders content as a QR code PNG of size x size pixels. Out of range
// sizes are clamped.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr code content is empty")
	}
	switch {
	case size == 0:
		size = DefaultSize
	case size < MinSize:
		size = MinSize
	case size > MaxSize:
		size = MaxSize
	}
	return goqrcode.Encode(content, goqrcode.Medium, size)
}
