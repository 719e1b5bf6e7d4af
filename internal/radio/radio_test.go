package radio

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/testutil/testlog"
)

func TestHeaderRoundTrip(t *testing.T) {
	testlog.Start(t)
	h := Header{Dst: addr.Broadcast, Src: 2, ID: 7, Flags: 0x80}
	wire, err := EncodePacket(h, []byte{0x02, 0x01})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(wire, []byte{0xff, 0x02, 0x07, 0x80, 0x02, 0x01}) {
		t.Fatalf("unexpected wire bytes: %v", wire)
	}
	got, frame, err := DecodePacket(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h || !bytes.Equal(frame, []byte{0x02, 0x01}) {
		t.Fatalf("round trip mismatch: %+v %v", got, frame)
	}
}

func TestHeaderErrors(t *testing.T) {
	testlog.Start(t)
	if _, _, err := DecodePacket([]byte{1, 2, 3}); !errors.Is(err, ErrShortPacket) {
		t.Fatalf("expected ErrShortPacket, got %v", err)
	}
	if _, _, err := DecodePacket(make([]byte, MaxPacketLen+1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := EncodePacket(Header{}, make([]byte, MaxFrameLen+1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestEtherDeliversToEveryOtherPort(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	a := mustAttach(t, e, 1)
	b := mustAttach(t, e, 2)
	c := mustAttach(t, e, 3)

	if err := a.Send([]byte{0x01}, 1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, p := range []*Port{b, c} {
		pkt, err := p.Receive(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("port %v receive: %v", p.Addr(), err)
		}
		if pkt.Src != 1 || pkt.Dst != 2 || !bytes.Equal(pkt.Data, []byte{0x01}) {
			t.Fatalf("port %v unexpected packet: %+v", p.Addr(), pkt)
		}
	}
	if _, err := a.Receive(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("sender should not hear itself, got %v", err)
	}
	if log := a.TxLog(); len(log) != 1 || log[0].Dst != 2 {
		t.Fatalf("unexpected tx log: %+v", log)
	}
}

func TestEtherAttachRules(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	p := mustAttach(t, e, 1)
	if _, err := e.Attach(1); !errors.Is(err, ErrAddrInUse) {
		t.Fatalf("expected ErrAddrInUse, got %v", err)
	}
	if _, err := e.Attach(addr.Broadcast); !errors.Is(err, addr.ErrInvalidAddr) {
		t.Fatalf("expected ErrInvalidAddr, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := p.Send([]byte{0x01}, 1, 2); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}
	if _, err := e.Attach(1); err != nil {
		t.Fatalf("address should be free after close: %v", err)
	}
}

func TestEtherDropAndInject(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	a := mustAttach(t, e, 1)
	b := mustAttach(t, e, 2)
	e.SetDrop(func(p Packet, to addr.Addr) bool { return to == 2 })

	if err := a.Send([]byte{0x03}, 1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := b.Receive(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("dropped packet delivered: %v", err)
	}

	b.Inject(Packet{Src: 9, Dst: 2, Data: []byte{0x03}})
	pkt, err := b.Receive(10 * time.Millisecond)
	if err != nil || pkt.Src != 9 {
		t.Fatalf("inject: pkt=%+v err=%v", pkt, err)
	}
}

func TestEtherQueueDropsOldest(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	a := mustAttach(t, e, 1)
	b := mustAttach(t, e, 2)
	for i := 0; i < portQueueLen+3; i++ {
		if err := a.Send([]byte{0x00, byte(i)}, 1, 2); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	pkt, err := b.Receive(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if pkt.Data[1] != 3 {
		t.Fatalf("expected oldest packets dropped, first=%d", pkt.Data[1])
	}
}

func TestEtherHoldTimeForgetsStalePackets(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	e.SetHoldTime(20 * time.Millisecond)
	a := mustAttach(t, e, 1)
	b := mustAttach(t, e, 2)
	if err := a.Send([]byte{0x01}, 1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if err := a.Send([]byte{0x03}, 1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	pkt, err := b.Receive(10 * time.Millisecond)
	if err != nil || pkt.Data[0] != 0x03 {
		t.Fatalf("expected only the fresh packet, pkt=%+v err=%v", pkt, err)
	}
	if _, err := b.Receive(5 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestUDPLoopback(t *testing.T) {
	testlog.Start(t)
	group := "239.18.75.1:18751"
	a, err := ListenUDP(UDPConfig{Self: 1, Group: group})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer a.Close()
	b, err := ListenUDP(UDPConfig{Self: 2, Group: group})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte{0x01}, 1, 2); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}
	pkt, err := b.Receive(500 * time.Millisecond)
	if errors.Is(err, ErrTimeout) {
		t.Skipf("multicast loopback not routed on this host")
	}
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if pkt.Src != 1 || pkt.Dst != 2 || !bytes.Equal(pkt.Data, []byte{0x01}) {
		t.Fatalf("unexpected packet: %+v", pkt)
	}
	if _, err := a.Receive(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("sender should skip its own echo, got %v", err)
	}
}

func mustAttach(t *testing.T, e *Ether, a addr.Addr) *Port {
	t.Helper()
	p, err := e.Attach(a)
	if err != nil {
		t.Fatalf("attach %v: %v", a, err)
	}
	return p
}

func TestEtherCorruptReportsErrCorrupt(t *testing.T) {
	testlog.Start(t)
	e := NewEther()
	a := mustAttach(t, e, 1)
	b := mustAttach(t, e, 2)
	defer a.Close()
	defer b.Close()
	e.SetCorrupt(func(p Packet, to addr.Addr) bool { return p.Data[0] == 0x02 })

	if err := a.Send([]byte{0x02, 0x02}, 1, addr.Broadcast); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := a.Send([]byte{0x01}, 1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := b.Receive(50 * time.Millisecond); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	pkt, err := b.Receive(50 * time.Millisecond)
	if err != nil || pkt.Data[0] != 0x01 {
		t.Fatalf("intact packet after corrupt one: pkt=%+v err=%v", pkt, err)
	}
}

func TestUDPReportsUndecodableDatagram(t *testing.T) {
	testlog.Start(t)
	group := "239.18.75.2:18752"
	rx, err := ListenUDP(UDPConfig{Self: 2, Group: group})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer rx.Close()
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conn, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		t.Skipf("multicast dial unavailable: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{0x02, 0x01}); err != nil {
		t.Skipf("multicast send unavailable: %v", err)
	}

	_, err = rx.Receive(500 * time.Millisecond)
	if errors.Is(err, ErrTimeout) {
		t.Skipf("multicast loopback not routed on this host")
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for a short datagram, got %v", err)
	}
}
