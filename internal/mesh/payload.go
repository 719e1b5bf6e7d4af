package mesh

import (
	"errors"
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/frame"
)

const (
	colorLen = 3
	padByte  = 0x55
)

var (
	ErrPayloadLen = errors.New("mesh: payload length out of range")
	ErrShortColor = errors.New("mesh: payload shorter than a colour")
	ErrBadPadding = errors.New("mesh: unexpected payload padding")
)

var defaultPalette = []NamedColor{
	{Name: "green", RGB: RGB{G: 255}},
	{Name: "yellow", RGB: RGB{R: 255, G: 255}},
	{Name: "cyan", RGB: RGB{G: 255, B: 255}},
	{Name: "purple", RGB: RGB{R: 255, B: 255}},
}

type NamedColor struct {
	Name string
	RGB  RGB
}

func Palette() []NamedColor {
	return append([]NamedColor(nil), defaultPalette...)
}

func ColorName(c RGB) string {
	for _, nc := range defaultPalette {
		if nc.RGB == c {
			return nc.Name
		}
	}
	return c.String()
}

// EncodeColor lays out r|g|b followed by 0x55 filler up to size bytes.
func EncodeColor(c RGB, size int) ([]byte, error) {
	if size < colorLen || size > frame.MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", ErrPayloadLen, size, colorLen, frame.MaxPayloadLen)
	}
	out := make([]byte, size)
	out[0], out[1], out[2] = c.R, c.G, c.B
	for i := colorLen; i < size; i++ {
		out[i] = padByte
	}
	return out, nil
}

func DecodeColor(p []byte) (RGB, error) {
	if len(p) < colorLen {
		return RGB{}, fmt.Errorf("%w: len=%d", ErrShortColor, len(p))
	}
	for i := colorLen; i < len(p); i++ {
		if p[i] != padByte {
			return RGB{}, fmt.Errorf("%w: offset=%d byte=0x%02x", ErrBadPadding, i, p[i])
		}
	}
	return RGB{R: p[0], G: p[1], B: p[2]}, nil
}
