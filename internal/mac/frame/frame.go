package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

// Type is the one-byte control tag leading every frame.
type Type byte

const (
	TypeData Type = 0x00
	TypeRTS  Type = 0x01
	TypeCTS  Type = 0x02
	TypeACK  Type = 0x03
)

const (
	TagLen = 1
	// MaxFrameLen is the transport payload budget left after the radio header.
	MaxFrameLen   = 250
	MaxPayloadLen = MaxFrameLen - TagLen
	CTSBodyLen    = 1
)

var (
	ErrEmptyFrame    = errors.New("frame: empty frame")
	ErrFrameTooLarge = errors.New("frame: body exceeds max frame length")
)

func (t Type) Known() bool { return t <= TypeACK }

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeRTS:
		return "RTS"
	case TypeCTS:
		return "CTS"
	case TypeACK:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// Frame is one decoded control frame. Body excludes the tag.
type Frame struct {
	Type Type
	Body []byte
}

func (f Frame) Known() bool { return f.Type.Known() }

// HasBodyLen reports whether the body length is legal for the frame's type.
// Unknown types never match.
func (f Frame) HasBodyLen() bool {
	switch f.Type {
	case TypeRTS, TypeACK:
		return len(f.Body) == 0
	case TypeCTS:
		return len(f.Body) == CTSBodyLen
	case TypeData:
		return len(f.Body) <= MaxPayloadLen
	default:
		return false
	}
}

// Approved returns the cleared node named by a CTS body.
func (f Frame) Approved() (addr.Addr, bool) {
	if len(f.Body) != CTSBodyLen {
		return 0, false
	}
	return addr.Addr(f.Body[0]), true
}

// Limits constrains frame encode size.
type Limits struct {
	MaxFrameLen int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameLen: MaxFrameLen}
}

func Encode(t Type, body []byte) ([]byte, error) {
	return EncodeWithLimits(t, body, DefaultLimits())
}

func EncodeWithLimits(t Type, body []byte, limits Limits) ([]byte, error) {
	if len(body) > limits.MaxFrameLen-TagLen {
		return nil, fmt.Errorf("%w: type=%s body=%d max=%d", ErrFrameTooLarge, t, len(body), limits.MaxFrameLen-TagLen)
	}
	out := make([]byte, TagLen+len(body))
	out[0] = byte(t)
	copy(out[TagLen:], body)
	return out, nil
}

// Decode splits tag and body without judging the tag; callers know what they expect.
func Decode(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	body := make([]byte, len(b)-TagLen)
	copy(body, b[TagLen:])
	return Frame{Type: Type(b[0]), Body: body}, nil
}

func RTS() []byte { return []byte{byte(TypeRTS)} }

func ACK() []byte { return []byte{byte(TypeACK)} }

func CTS(approved addr.Addr) []byte { return []byte{byte(TypeCTS), byte(approved)} }

func Data(payload []byte) ([]byte, error) { return Encode(TypeData, payload) }
