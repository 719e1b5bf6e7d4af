package mac

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/frame"
	"github.com/danmuck/meshmac/internal/radio"
	"github.com/danmuck/meshmac/internal/testutil/testlog"
)

// scriptTransport replays queued receive results and records sends.
type scriptTransport struct {
	rx      []scripted
	sent    []radio.Packet
	sendErr error
}

type scripted struct {
	pkt radio.Packet
	err error
}

func (s *scriptTransport) Send(data []byte, src, dst addr.Addr) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	cp := append([]byte(nil), data...)
	s.sent = append(s.sent, radio.Packet{Src: src, Dst: dst, Data: cp})
	return nil
}

func (s *scriptTransport) Receive(time.Duration) (radio.Packet, error) {
	if len(s.rx) == 0 {
		return radio.Packet{}, radio.ErrTimeout
	}
	next := s.rx[0]
	s.rx = s.rx[1:]
	return next.pkt, next.err
}

func (s *scriptTransport) hear(src, dst addr.Addr, data []byte) {
	s.rx = append(s.rx, scripted{pkt: radio.Packet{Src: src, Dst: dst, Data: data}})
}

func newScriptedNode(t *testing.T, self addr.Addr) (*Node, *scriptTransport) {
	t.Helper()
	tr := &scriptTransport{}
	n, err := NewNode(self, tr, DefaultConfig())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n, tr
}

func mustData(t *testing.T, payload []byte) []byte {
	t.Helper()
	b, err := frame.Data(payload)
	if err != nil {
		t.Fatalf("encode data: %v", err)
	}
	return b
}

func TestNewNodeRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	if _, err := NewNode(addr.Broadcast, &scriptTransport{}, DefaultConfig()); !errors.Is(err, addr.ErrInvalidAddr) {
		t.Fatalf("expected ErrInvalidAddr, got %v", err)
	}
	if _, err := NewNode(1, nil, DefaultConfig()); err == nil {
		t.Fatalf("expected nil transport error")
	}
	n, err := NewNode(1, &scriptTransport{}, Config{CTSTimeout: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if cfg := n.Config(); cfg.CTSTimeout != 5*time.Millisecond || cfg.RTSTimeout != DefaultPhaseTimeout {
		t.Fatalf("unexpected config defaults: %+v", cfg)
	}
}

func TestWaitCTSOutcomes(t *testing.T) {
	testlog.Start(t)
	const self, peer = addr.Addr(1), addr.Addr(2)
	tests := []struct {
		name  string
		hear  func(tr *scriptTransport)
		want  Outcome
		fatal bool
	}{
		{name: "timeout", hear: func(tr *scriptTransport) {}, want: CTSTimeout},
		{name: "empty frame", hear: func(tr *scriptTransport) { tr.hear(peer, addr.Broadcast, nil) }, want: CTSWrong},
		{name: "ack has wrong length", hear: func(tr *scriptTransport) { tr.hear(peer, self, frame.ACK()) }, want: CTSWrong},
		{name: "cts too long", hear: func(tr *scriptTransport) { tr.hear(peer, addr.Broadcast, []byte{0x02, 0x01, 0x00}) }, want: CTSWrong},
		{name: "data with one byte", hear: func(tr *scriptTransport) { tr.hear(peer, self, []byte{0x00, byte(self)}) }, want: CTSWrong},
		{name: "unknown type", hear: func(tr *scriptTransport) { tr.hear(peer, addr.Broadcast, []byte{0x04, byte(self)}) }, want: CTSWrong},
		{name: "cts for another node", hear: func(tr *scriptTransport) { tr.hear(3, addr.Broadcast, frame.CTS(4)) }, want: CTSNotDest},
		{name: "overheard unicast cts for another node", hear: func(tr *scriptTransport) { tr.hear(3, 4, frame.CTS(4)) }, want: CTSNotDest},
		{name: "cts naming us sent elsewhere", hear: func(tr *scriptTransport) { tr.hear(peer, 4, frame.CTS(self)) }, want: CTSWrong},
		{name: "cts from unsolicited node", hear: func(tr *scriptTransport) { tr.hear(3, addr.Broadcast, frame.CTS(self)) }, want: CTSWrong, fatal: true},
		{name: "valid cts", hear: func(tr *scriptTransport) { tr.hear(peer, addr.Broadcast, frame.CTS(self)) }, want: Success},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, tr := newScriptedNode(t, self)
			tt.hear(tr)
			got, err := n.waitCTS(peer)
			if got != tt.want {
				t.Fatalf("outcome=%s want %s", got, tt.want)
			}
			if tt.fatal {
				if !IsFatal(err) || !errors.Is(err, ErrUnsolicited) {
					t.Fatalf("expected fatal ErrUnsolicited, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestWaitACKOutcomes(t *testing.T) {
	testlog.Start(t)
	const self, peer = addr.Addr(1), addr.Addr(2)

	n, tr := newScriptedNode(t, self)
	if got, err := n.waitACK(peer); got != ACKTimeout || err != nil {
		t.Fatalf("timeout got=%s err=%v", got, err)
	}

	tr.hear(peer, self, []byte{0x03, 0x00})
	if got, _ := n.waitACK(peer); got != ACKWrong {
		t.Fatalf("long ack got=%s", got)
	}
	tr.hear(peer, self, frame.RTS())
	if got, _ := n.waitACK(peer); got != ACKWrong {
		t.Fatalf("rts as ack got=%s", got)
	}
	tr.hear(peer, 3, frame.ACK())
	if got, _ := n.waitACK(peer); got != ACKWrong {
		t.Fatalf("misaddressed ack got=%s", got)
	}

	tr.hear(3, self, frame.ACK())
	if got, err := n.waitACK(peer); got != ACKWrong || !IsFatal(err) {
		t.Fatalf("unsolicited ack got=%s err=%v", got, err)
	}
	if s := n.Stats(); s.NumAck != 0 {
		t.Fatalf("failed acks must not count: %+v", s)
	}

	if err := n.sendMsg(peer, []byte{1, 2, 3}); err != nil {
		t.Fatalf("send msg: %v", err)
	}
	tr.hear(peer, self, frame.ACK())
	if got, err := n.waitACK(peer); got != Success || err != nil {
		t.Fatalf("valid ack got=%s err=%v", got, err)
	}
	s := n.Stats()
	if s.NumSent != 1 || s.NumAck != 1 || s.BytesAcked != 3 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestWaitRTSOutcomes(t *testing.T) {
	testlog.Start(t)
	const self = addr.Addr(2)
	n, tr := newScriptedNode(t, self)

	if _, got, err := n.waitRTS(); got != RTSTimeout || err != nil {
		t.Fatalf("timeout got=%s err=%v", got, err)
	}
	tr.hear(3, addr.Broadcast, frame.CTS(4))
	if _, got, _ := n.waitRTS(); got != RTSWrong {
		t.Fatalf("overheard cts got=%s", got)
	}
	if !RTSWrong.Busy() {
		t.Fatalf("rts wrong should be a busy signal")
	}
	tr.hear(3, 4, frame.RTS())
	if _, got, _ := n.waitRTS(); got != RTSWrong {
		t.Fatalf("rts for another node got=%s", got)
	}
	tr.hear(3, self, []byte{0x01, 0x09})
	if _, got, _ := n.waitRTS(); got != RTSWrong {
		t.Fatalf("long rts got=%s", got)
	}
	tr.hear(1, self, frame.RTS())
	from, out, err := n.waitRTS()
	if out != Success || err != nil || from != 1 {
		t.Fatalf("valid rts from=%v out=%s err=%v", from, out, err)
	}
}

func TestRecvMsgOutcomes(t *testing.T) {
	testlog.Start(t)
	const self, peer = addr.Addr(2), addr.Addr(1)
	n, tr := newScriptedNode(t, self)

	if p, out, _ := n.recvMsg(peer); p != nil || out != MsgTimeout {
		t.Fatalf("timeout p=%v out=%s", p, out)
	}

	tooLong := append([]byte{0x00}, make([]byte, frame.MaxPayloadLen+1)...)
	tr.hear(peer, self, tooLong)
	if p, out, _ := n.recvMsg(peer); p != nil || out != MsgWrong {
		t.Fatalf("too long p=%v out=%s", p, out)
	}

	tr.hear(peer, self, frame.ACK())
	if p, out, _ := n.recvMsg(peer); p != nil || out != MsgWrong {
		t.Fatalf("wrong type p=%v out=%s", p, out)
	}

	tr.hear(3, self, mustData(t, []byte{0xaa}))
	if p, out, _ := n.recvMsg(peer); p != nil || out != MsgUncleared {
		t.Fatalf("uncleared p=%v out=%s", p, out)
	}
	if s := n.Stats(); s.NumRecv != 0 {
		t.Fatalf("rejected data must not count: %+v", s)
	}

	tr.hear(peer, self, mustData(t, []byte{0xff, 0x00, 0x00}))
	p, out, err := n.recvMsg(peer)
	if err != nil || out != Success || !bytes.Equal(p, []byte{0xff, 0x00, 0x00}) {
		t.Fatalf("valid data p=%v out=%s err=%v", p, out, err)
	}
	if s := n.Stats(); s.NumRecv != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestLastHeardTracksReceives(t *testing.T) {
	testlog.Start(t)
	n, tr := newScriptedNode(t, 1)
	tr.hear(2, 1, frame.ACK())
	_, _ = n.waitACK(2)
	if a, ok := n.LastHeard(); !ok || a != 2 {
		t.Fatalf("last heard=%v ok=%v", a, ok)
	}
	tr.hear(3, 4, frame.RTS())
	_, _, _ = n.waitRTS()
	if _, ok := n.LastHeard(); ok {
		t.Fatalf("misaddressed frame must clear last heard")
	}
	tr.hear(3, addr.Broadcast, frame.CTS(4))
	_, _ = n.waitCTS(2)
	if a, ok := n.LastHeard(); !ok || a != 3 {
		t.Fatalf("broadcast frame should set last heard, got=%v ok=%v", a, ok)
	}
	_, _ = n.waitCTS(2)
	if _, ok := n.LastHeard(); ok {
		t.Fatalf("timeout must clear last heard")
	}
}

func TestSendsUseControlFramesAndAddressing(t *testing.T) {
	testlog.Start(t)
	n, tr := newScriptedNode(t, 1)
	if err := n.sendRTS(2); err != nil {
		t.Fatalf("rts: %v", err)
	}
	if err := n.sendCTS(3); err != nil {
		t.Fatalf("cts: %v", err)
	}
	if err := n.sendACK(2); err != nil {
		t.Fatalf("ack: %v", err)
	}
	want := []radio.Packet{
		{Src: 1, Dst: 2, Data: []byte{0x01}},
		{Src: 1, Dst: addr.Broadcast, Data: []byte{0x02, 0x03}},
		{Src: 1, Dst: 2, Data: []byte{0x03}},
	}
	if len(tr.sent) != len(want) {
		t.Fatalf("sent=%d want %d", len(tr.sent), len(want))
	}
	for i := range want {
		if tr.sent[i].Src != want[i].Src || tr.sent[i].Dst != want[i].Dst || !bytes.Equal(tr.sent[i].Data, want[i].Data) {
			t.Fatalf("sent[%d]=%+v want %+v", i, tr.sent[i], want[i])
		}
	}
	if s := n.Stats(); s.NumSent != 0 {
		t.Fatalf("control frames must not count as sends: %+v", s)
	}
}

func TestSendMsgErrors(t *testing.T) {
	testlog.Start(t)
	n, tr := newScriptedNode(t, 1)
	if err := n.sendMsg(2, make([]byte, frame.MaxPayloadLen+1)); !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	tr.sendErr = radio.ErrClosed
	if err := n.sendMsg(2, []byte{1}); !errors.Is(err, radio.ErrClosed) {
		t.Fatalf("expected wrapped radio.ErrClosed, got %v", err)
	}
	if IsFatal(tr.sendErr) {
		t.Fatalf("transport errors are not fatal")
	}
	if s := n.Stats(); s.NumSent != 0 {
		t.Fatalf("failed sends must not count: %+v", s)
	}
}

func TestReceiveTransportError(t *testing.T) {
	testlog.Start(t)
	n, tr := newScriptedNode(t, 1)
	tr.rx = append(tr.rx, scripted{err: radio.ErrClosed})
	out, err := n.waitCTS(2)
	if out != CTSTimeout || !errors.Is(err, radio.ErrClosed) || IsFatal(err) {
		t.Fatalf("out=%s err=%v", out, err)
	}
}

func TestUnknownTypeNeverCrashesWaits(t *testing.T) {
	testlog.Start(t)
	unknown := []byte{0x04}
	n, tr := newScriptedNode(t, 1)

	tr.hear(2, 1, unknown)
	if out, err := n.waitCTS(2); out != CTSWrong || err != nil {
		t.Fatalf("cts out=%s err=%v", out, err)
	}
	tr.hear(2, 1, unknown)
	if out, err := n.waitACK(2); out != ACKWrong || err != nil {
		t.Fatalf("ack out=%s err=%v", out, err)
	}
	tr.hear(2, 1, unknown)
	if _, out, err := n.waitRTS(); out != RTSWrong || err != nil {
		t.Fatalf("rts out=%s err=%v", out, err)
	}
	tr.hear(2, 1, unknown)
	if p, out, err := n.recvMsg(2); p != nil || out != MsgWrong || err != nil {
		t.Fatalf("msg p=%v out=%s err=%v", p, out, err)
	}
}
