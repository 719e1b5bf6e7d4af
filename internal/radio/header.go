package radio

import (
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

// Header is the RadioHead addressing header: dest | src | id | flags.
type Header struct {
	Dst   addr.Addr
	Src   addr.Addr
	ID    uint8
	Flags uint8
}

func EncodePacket(h Header, frame []byte) ([]byte, error) {
	if len(frame) > MaxFrameLen {
		return nil, fmt.Errorf("%w: frame=%d max=%d", ErrTooLarge, len(frame), MaxFrameLen)
	}
	out := make([]byte, HeaderLen+len(frame))
	out[0] = byte(h.Dst)
	out[1] = byte(h.Src)
	out[2] = h.ID
	out[3] = h.Flags
	copy(out[HeaderLen:], frame)
	return out, nil
}

func DecodePacket(b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, ErrShortPacket
	}
	if len(b) > MaxPacketLen {
		return Header{}, nil, ErrTooLarge
	}
	h := Header{
		Dst:   addr.Addr(b[0]),
		Src:   addr.Addr(b[1]),
		ID:    b[2],
		Flags: b[3],
	}
	frame := make([]byte, len(b)-HeaderLen)
	copy(frame, b[HeaderLen:])
	return h, frame, nil
}
