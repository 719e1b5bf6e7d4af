package radio

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"golang.org/x/net/ipv4"
)

const DefaultMulticastGroup = "239.18.75.0:18750"

// UDPConfig configures the multicast channel emulation.
type UDPConfig struct {
	Self addr.Addr
	// Group is the ipv4 multicast group:port shared by every node on the channel.
	Group string
	// Interface restricts the group join to one NIC; empty lets the kernel pick.
	Interface string
}

// UDP emulates the shared radio channel with ipv4 multicast: every datagram
// reaches every joined node, and the node filters by the RadioHead header.
type UDP struct {
	self  addr.Addr
	group *net.UDPAddr
	conn  *net.UDPConn
	pc    *ipv4.PacketConn

	mu  sync.Mutex
	seq uint8
	buf [MaxPacketLen + 1]byte
}

var _ Transport = (*UDP)(nil)

func ListenUDP(cfg UDPConfig) (*UDP, error) {
	if !cfg.Self.IsUnicast() {
		return nil, fmt.Errorf("radio: udp self %v: %w", cfg.Self, addr.ErrInvalidAddr)
	}
	raw := strings.TrimSpace(cfg.Group)
	if raw == "" {
		raw = DefaultMulticastGroup
	}
	group, err := net.ResolveUDPAddr("udp4", raw)
	if err != nil {
		return nil, fmt.Errorf("radio: resolve group %q: %w", raw, err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("radio: group %q is not multicast", raw)
	}

	var ifi *net.Interface
	if name := strings.TrimSpace(cfg.Interface); name != "" {
		ifi, err = net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("radio: interface %q: %w", name, err)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("radio: listen %s: %w", group, err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(true); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("radio: multicast loopback: %w", err)
	}
	if err := pc.SetMulticastTTL(1); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("radio: multicast ttl: %w", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("radio: multicast interface: %w", err)
		}
	}
	return &UDP{self: cfg.Self, group: group, conn: conn, pc: pc}, nil
}

func (u *UDP) Send(frame []byte, src, dst addr.Addr) error {
	u.mu.Lock()
	id := u.seq
	u.seq++
	u.mu.Unlock()

	pkt, err := EncodePacket(Header{Dst: dst, Src: src, ID: id}, frame)
	if err != nil {
		return err
	}
	if _, err := u.conn.WriteToUDP(pkt, u.group); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("radio: udp send: %w", err)
	}
	return nil
}

// Receive skips datagrams this node sent itself; multicast loopback echoes them.
func (u *UDP) Receive(timeout time.Duration) (Packet, error) {
	deadline := time.Now().Add(timeout)
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return Packet{}, fmt.Errorf("radio: udp deadline: %w", err)
	}
	for {
		n, _, err := u.conn.ReadFromUDP(u.buf[:])
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				return Packet{}, ErrTimeout
			case errors.Is(err, net.ErrClosed):
				return Packet{}, ErrClosed
			default:
				return Packet{}, fmt.Errorf("radio: udp receive: %w", err)
			}
		}
		h, frame, err := DecodePacket(u.buf[:n])
		if err != nil {
			return Packet{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if h.Src == u.self {
			continue
		}
		return Packet{
			Src:   h.Src,
			Dst:   h.Dst,
			ID:    h.ID,
			Flags: h.Flags,
			Data:  frame,
			RSSI:  RSSIUnknown,
		}, nil
	}
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
