package mac

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/frame"
	"github.com/danmuck/meshmac/internal/mac/stats"
	"github.com/danmuck/meshmac/internal/radio"
	logs "github.com/danmuck/smplog"
)

// Node is one station's MAC. It is driven by a single control loop and owns
// its transport for the duration of each session.
type Node struct {
	self  addr.Addr
	radio radio.Transport
	cfg   Config
	stats *stats.Tracker

	heard    addr.LastHeard
	lastSent int
	active   *Session

	// rtsTo and dataTo remember recent requests so a reply that arrives after
	// its session ended is read as noise instead of an unsolicited frame.
	rtsTo  recentPeers
	dataTo recentPeers
	now    func() time.Time
}

type Option func(*Node)

func WithTracker(t *stats.Tracker) Option {
	return func(n *Node) {
		if t != nil {
			n.stats = t
		}
	}
}

// WithClock replaces the wall clock used to age recent requests.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

func NewNode(self addr.Addr, tr radio.Transport, cfg Config, opts ...Option) (*Node, error) {
	if !self.IsUnicast() {
		return nil, fmt.Errorf("mac: node address %v: %w", self, addr.ErrInvalidAddr)
	}
	if tr == nil {
		return nil, errors.New("mac: nil transport")
	}
	n := &Node{
		self:  self,
		radio: tr,
		cfg:   cfg.WithDefaults(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.stats == nil {
		n.stats = stats.New()
	}
	n.rtsTo = newRecentPeers(n.cfg.LateReplyWindow)
	n.dataTo = newRecentPeers(n.cfg.LateReplyWindow)
	return n, nil
}

func (n *Node) Self() addr.Addr { return n.self }

func (n *Node) Config() Config { return n.cfg }

func (n *Node) Stats() stats.Snapshot { return n.stats.Snapshot() }

// LastHeard is the origin of the most recent validly addressed frame.
func (n *Node) LastHeard() (addr.Addr, bool) { return n.heard.Get() }

// received is one receive attempt after address filtering and decode.
type received struct {
	timeout      bool
	corrupt      bool
	misaddressed bool
	empty        bool
	pkt          radio.Packet
	frame        frame.Frame
}

func (n *Node) receive(timeout time.Duration) (received, error) {
	pkt, err := n.radio.Receive(timeout)
	if errors.Is(err, radio.ErrTimeout) {
		n.heard.Clear()
		return received{timeout: true}, nil
	}
	if errors.Is(err, radio.ErrCorrupt) {
		n.heard.Clear()
		logs.Warnf("mac.Node.receive corrupt packet node=%v err=%v", n.self, err)
		return received{corrupt: true}, nil
	}
	if err != nil {
		n.heard.Clear()
		return received{}, fmt.Errorf("mac: receive: %w", err)
	}

	r := received{pkt: pkt}
	f, err := frame.Decode(pkt.Data)
	if err != nil {
		r.empty = true
	} else {
		r.frame = f
	}
	logs.Debugf(
		"mac.Node.receive node=%v src=%v dst=%v type=%s len=%d rssi=%d snr=%.1f",
		n.self, pkt.Src, pkt.Dst, r.frame.Type, len(pkt.Data), pkt.RSSI, pkt.SNR,
	)

	if !addr.IsAddressedToMe(pkt.Dst, n.self) {
		n.heard.Clear()
		r.misaddressed = true
		return r, nil
	}
	n.heard.Set(pkt.Src)
	return r, nil
}

func (n *Node) send(kind string, data []byte, dst addr.Addr) error {
	if err := n.radio.Send(data, n.self, dst); err != nil {
		return fmt.Errorf("mac: send %s to %v: %w", kind, dst, err)
	}
	return nil
}

func (n *Node) sendRTS(peer addr.Addr) error {
	logs.Infof("mac.Node.sendRTS node=%v peer=%v", n.self, peer)
	if err := n.send("rts", frame.RTS(), peer); err != nil {
		return err
	}
	n.rtsTo.mark(peer, n.now())
	return nil
}

func (n *Node) waitCTS(peer addr.Addr) (Outcome, error) {
	logs.Infof("mac.Node.waitCTS node=%v peer=%v", n.self, peer)
	r, err := n.receive(n.cfg.CTSTimeout)
	if err != nil {
		return CTSTimeout, err
	}
	if r.timeout {
		logs.Warnf("mac.Node.waitCTS timeout node=%v peer=%v", n.self, peer)
		return CTSTimeout, nil
	}
	if r.corrupt {
		return PacketCorrupt, nil
	}
	f := r.frame
	if r.empty || len(f.Body) != frame.CTSBodyLen {
		logs.Warnf("mac.Node.waitCTS wrong length node=%v src=%v len=%d", n.self, r.pkt.Src, len(r.pkt.Data))
		return CTSWrong, nil
	}
	if f.Type != frame.TypeCTS {
		logs.Warnf("mac.Node.waitCTS not a cts node=%v src=%v type=%s", n.self, r.pkt.Src, f.Type)
		return CTSWrong, nil
	}
	approved, _ := f.Approved()
	if approved != n.self {
		logs.Warnf("mac.Node.waitCTS channel reserved node=%v approved=%v by=%v", n.self, approved, r.pkt.Src)
		return CTSNotDest, nil
	}
	if r.misaddressed {
		logs.Warnf("mac.Node.waitCTS cts not addressed here node=%v dst=%v", n.self, r.pkt.Dst)
		return CTSWrong, nil
	}
	if !addr.MatchesExpectedOrigin(r.pkt.Src, peer) {
		if n.rtsTo.within(r.pkt.Src, n.now()) {
			logs.Warnf("mac.Node.waitCTS late cts from an earlier rts node=%v peer=%v src=%v", n.self, peer, r.pkt.Src)
			return CTSWrong, nil
		}
		err := n.invariant("wait_cts", ErrUnsolicited, "rts sent to %v, cts from %v", peer, r.pkt.Src)
		logs.Errorf(err, "mac.Node.waitCTS clearance from unsolicited node node=%v peer=%v src=%v", n.self, peer, r.pkt.Src)
		return CTSWrong, err
	}
	logs.Infof("mac.Node.waitCTS cleared node=%v peer=%v", n.self, peer)
	return Success, nil
}

func (n *Node) sendMsg(peer addr.Addr, payload []byte) error {
	data, err := frame.Data(payload)
	if err != nil {
		return fmt.Errorf("mac: send msg to %v: %w", peer, err)
	}
	logs.Infof("mac.Node.sendMsg node=%v peer=%v bytes=%d", n.self, peer, len(payload))
	if err := n.send("msg", data, peer); err != nil {
		return err
	}
	n.stats.RecordSend()
	n.lastSent = len(payload)
	n.dataTo.mark(peer, n.now())
	return nil
}

func (n *Node) waitACK(peer addr.Addr) (Outcome, error) {
	logs.Infof("mac.Node.waitACK node=%v peer=%v", n.self, peer)
	r, err := n.receive(n.cfg.ACKTimeout)
	if err != nil {
		return ACKTimeout, err
	}
	if r.timeout {
		logs.Warnf("mac.Node.waitACK timeout node=%v peer=%v", n.self, peer)
		return ACKTimeout, nil
	}
	if r.corrupt {
		return PacketCorrupt, nil
	}
	if r.misaddressed || r.empty || len(r.frame.Body) != 0 || r.frame.Type != frame.TypeACK {
		logs.Warnf("mac.Node.waitACK wrong frame node=%v src=%v dst=%v len=%d", n.self, r.pkt.Src, r.pkt.Dst, len(r.pkt.Data))
		return ACKWrong, nil
	}
	if !addr.MatchesExpectedOrigin(r.pkt.Src, peer) {
		if n.dataTo.within(r.pkt.Src, n.now()) {
			logs.Warnf("mac.Node.waitACK late ack for earlier data node=%v peer=%v src=%v", n.self, peer, r.pkt.Src)
			return ACKWrong, nil
		}
		err := n.invariant("wait_ack", ErrUnsolicited, "data sent to %v, ack from %v", peer, r.pkt.Src)
		logs.Errorf(err, "mac.Node.waitACK ack from node never cleared node=%v peer=%v src=%v", n.self, peer, r.pkt.Src)
		return ACKWrong, err
	}
	n.stats.RecordAck(n.lastSent)
	n.lastSent = 0
	logs.Infof("mac.Node.waitACK acked node=%v peer=%v", n.self, peer)
	return Success, nil
}

func (n *Node) waitRTS() (addr.Addr, Outcome, error) {
	logs.Infof("mac.Node.waitRTS node=%v", n.self)
	r, err := n.receive(n.cfg.RTSTimeout)
	if err != nil {
		return 0, RTSTimeout, err
	}
	if r.timeout {
		logs.Debugf("mac.Node.waitRTS timeout node=%v", n.self)
		return 0, RTSTimeout, nil
	}
	if r.corrupt {
		return 0, PacketCorrupt, nil
	}
	if r.misaddressed || r.empty || len(r.frame.Body) != 0 {
		logs.Warnf("mac.Node.waitRTS wrong frame node=%v src=%v dst=%v len=%d", n.self, r.pkt.Src, r.pkt.Dst, len(r.pkt.Data))
		return 0, RTSWrong, nil
	}
	if r.frame.Type != frame.TypeRTS || !r.pkt.Src.IsUnicast() {
		logs.Warnf("mac.Node.waitRTS not an rts node=%v src=%v type=%s", n.self, r.pkt.Src, r.frame.Type)
		return 0, RTSWrong, nil
	}
	logs.Infof("mac.Node.waitRTS valid rts node=%v from=%v", n.self, r.pkt.Src)
	return r.pkt.Src, Success, nil
}

func (n *Node) sendCTS(approved addr.Addr) error {
	logs.Infof("mac.Node.sendCTS node=%v approved=%v", n.self, approved)
	return n.send("cts", frame.CTS(approved), addr.Broadcast)
}

func (n *Node) recvMsg(expected addr.Addr) ([]byte, Outcome, error) {
	logs.Infof("mac.Node.recvMsg node=%v expected=%v", n.self, expected)
	r, err := n.receive(n.cfg.DataTimeout)
	if err != nil {
		return nil, MsgTimeout, err
	}
	if r.timeout {
		logs.Warnf("mac.Node.recvMsg timeout node=%v expected=%v", n.self, expected)
		return nil, MsgTimeout, nil
	}
	if r.corrupt {
		return nil, PacketCorrupt, nil
	}
	if r.misaddressed || r.empty {
		logs.Warnf("mac.Node.recvMsg wrong frame node=%v src=%v dst=%v", n.self, r.pkt.Src, r.pkt.Dst)
		return nil, MsgWrong, nil
	}
	if len(r.frame.Body) > frame.MaxPayloadLen {
		logs.Warnf("mac.Node.recvMsg payload too long node=%v len=%d", n.self, len(r.frame.Body))
		return nil, MsgWrong, nil
	}
	if r.frame.Type != frame.TypeData {
		logs.Warnf("mac.Node.recvMsg wrong control byte node=%v type=%s", n.self, r.frame.Type)
		return nil, MsgWrong, nil
	}
	if !addr.MatchesExpectedOrigin(r.pkt.Src, expected) {
		logs.Zerolog().Error().Msgf("mac.Node.recvMsg node not cleared to send sent data node=%v expected=%v src=%v", n.self, expected, r.pkt.Src)
		return nil, MsgUncleared, nil
	}
	n.stats.RecordRecv()
	return r.frame.Body, Success, nil
}

func (n *Node) sendACK(peer addr.Addr) error {
	logs.Infof("mac.Node.sendACK node=%v peer=%v", n.self, peer)
	return n.send("ack", frame.ACK(), peer)
}
