// Package radio owns the half-duplex channel the MAC transmits on.
//
// Ownership boundary:
// - Transport contract consumed by internal/mac
// - RadioHead-style 4-byte addressing header
// - in-memory Ether medium and UDP multicast channel emulation
package radio

import (
	"errors"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

var (
	ErrTimeout     = errors.New("radio: receive timed out")
	ErrClosed      = errors.New("radio: transport closed")
	ErrShortPacket = errors.New("radio: packet shorter than header")
	ErrTooLarge    = errors.New("radio: packet exceeds max size")
	ErrAddrInUse   = errors.New("radio: address already attached")
	// ErrCorrupt is returned by Receive for a datagram whose header cannot be decoded.
	ErrCorrupt = errors.New("radio: corrupt packet")
)

const (
	HeaderLen = 4
	// MaxPacketLen matches the LoRa FIFO budget: header plus a 250 byte frame.
	MaxPacketLen = 254
	MaxFrameLen  = MaxPacketLen - HeaderLen

	// RSSIUnknown marks metadata the transport cannot measure.
	RSSIUnknown = 127
)

// Transport is a best-effort, unordered datagram channel with embedded addressing.
type Transport interface {
	Send(frame []byte, src, dst addr.Addr) error
	// Receive blocks for at most timeout and returns ErrTimeout when nothing
	// arrived or ErrCorrupt when something arrived that could not be decoded.
	Receive(timeout time.Duration) (Packet, error)
}

// Packet is one received datagram. Data is the frame without the radio header.
type Packet struct {
	Src   addr.Addr
	Dst   addr.Addr
	ID    uint8
	Flags uint8
	Data  []byte
	RSSI  int
	SNR   float64
}

func clonePacket(p Packet) Packet {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	p.Data = data
	return p
}
