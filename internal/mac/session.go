package mac

import (
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCTS
	PhaseTransmitting
	PhaseAwaitingACK
	PhaseAwaitingRTS
	PhaseSendingCTS
	PhaseAwaitingData
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:         "idle",
	PhaseAwaitingCTS:  "awaiting_cts",
	PhaseTransmitting: "transmitting",
	PhaseAwaitingACK:  "awaiting_ack",
	PhaseAwaitingRTS:  "awaiting_rts",
	PhaseSendingCTS:   "sending_cts",
	PhaseAwaitingData: "awaiting_data",
	PhaseDone:         "done",
	PhaseFailed:       "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Session is one handshake attempt. A Node holds at most one open session;
// Close discards it and lets the next attempt begin.
//
// Initiator: Idle -> AwaitingCTS -> Transmitting -> AwaitingACK -> Done|Failed
// Responder: Idle -> AwaitingRTS -> SendingCTS -> AwaitingData -> Done|Failed
type Session struct {
	node    *Node
	role    Role
	peer    addr.Addr
	hasPeer bool
	phase   Phase
	origin  addr.LastHeard

	delivered bool
	closed    bool
}

func (n *Node) OpenInitiator(peer addr.Addr) (*Session, error) {
	if !peer.IsUnicast() || peer == n.self {
		return nil, n.invariant("open_initiator", ErrInvalidPeer, "peer=%v self=%v", peer, n.self)
	}
	return n.open(RoleInitiator, peer, true)
}

func (n *Node) OpenResponder() (*Session, error) {
	return n.open(RoleResponder, 0, false)
}

func (n *Node) open(role Role, peer addr.Addr, hasPeer bool) (*Session, error) {
	if n.active != nil {
		return nil, n.invariant("open", ErrSessionActive, "role=%s active_role=%s active_phase=%s", role, n.active.role, n.active.phase)
	}
	s := &Session{
		node:    n,
		role:    role,
		peer:    peer,
		hasPeer: hasPeer,
		phase:   PhaseIdle,
	}
	n.active = s
	return s, nil
}

func (s *Session) Role() Role { return s.role }

func (s *Session) Phase() Phase { return s.phase }

// Peer is the node this session transmits to, or the sender of the accepted RTS.
func (s *Session) Peer() (addr.Addr, bool) { return s.peer, s.hasPeer }

// Origin is the sender of the last validly addressed frame this session received.
func (s *Session) Origin() (addr.Addr, bool) { return s.origin.Get() }

func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.node.active == s {
		s.node.active = nil
	}
}

func (s *Session) expect(op string, role Role, phase Phase) error {
	if s.closed {
		return s.node.invariant(op, ErrSessionClosed, "role=%s", s.role)
	}
	if s.role != role || s.phase != phase {
		return s.node.invariant(op, ErrPhase, "role=%s phase=%s want_role=%s want_phase=%s", s.role, s.phase, role, phase)
	}
	return nil
}

func (s *Session) settle(out Outcome, err error, next Phase) {
	if a, ok := s.node.heard.Get(); ok {
		s.origin.Set(a)
	} else {
		s.origin.Clear()
	}
	if err != nil || out != Success {
		s.phase = PhaseFailed
		return
	}
	s.phase = next
}

func (s *Session) SendRTS() error {
	if err := s.expect("send_rts", RoleInitiator, PhaseIdle); err != nil {
		return err
	}
	if err := s.node.sendRTS(s.peer); err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = PhaseAwaitingCTS
	return nil
}

func (s *Session) WaitCTS() (Outcome, error) {
	if err := s.expect("wait_cts", RoleInitiator, PhaseAwaitingCTS); err != nil {
		return CTSWrong, err
	}
	out, err := s.node.waitCTS(s.peer)
	s.settle(out, err, PhaseTransmitting)
	return out, err
}

func (s *Session) SendMsg(payload []byte) error {
	if err := s.expect("send_msg", RoleInitiator, PhaseTransmitting); err != nil {
		return err
	}
	if err := s.node.sendMsg(s.peer, payload); err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = PhaseAwaitingACK
	return nil
}

func (s *Session) WaitACK() (Outcome, error) {
	if err := s.expect("wait_ack", RoleInitiator, PhaseAwaitingACK); err != nil {
		return ACKWrong, err
	}
	out, err := s.node.waitACK(s.peer)
	s.settle(out, err, PhaseDone)
	return out, err
}

func (s *Session) WaitRTS() (Outcome, error) {
	if err := s.expect("wait_rts", RoleResponder, PhaseIdle); err != nil {
		return RTSWrong, err
	}
	s.phase = PhaseAwaitingRTS
	from, out, err := s.node.waitRTS()
	if err == nil && out == Success {
		s.peer = from
		s.hasPeer = true
	}
	s.settle(out, err, PhaseSendingCTS)
	return out, err
}

func (s *Session) SendCTS() error {
	if err := s.expect("send_cts", RoleResponder, PhaseSendingCTS); err != nil {
		return err
	}
	if err := s.node.sendCTS(s.peer); err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = PhaseAwaitingData
	return nil
}

// RecvMsg returns the DATA payload without its control byte. A nil payload
// comes with the outcome explaining why nothing was delivered.
func (s *Session) RecvMsg() ([]byte, Outcome, error) {
	if err := s.expect("recv_msg", RoleResponder, PhaseAwaitingData); err != nil {
		return nil, MsgWrong, err
	}
	if s.delivered {
		return nil, MsgWrong, s.node.invariant("recv_msg", ErrPhase, "payload already delivered")
	}
	payload, out, err := s.node.recvMsg(s.peer)
	if err != nil || out != Success {
		s.settle(out, err, PhaseFailed)
		return nil, out, err
	}
	s.settle(out, err, PhaseAwaitingData)
	s.delivered = true
	return payload, out, nil
}

// SendACK acknowledges the one DATA frame this session delivered.
func (s *Session) SendACK() error {
	if err := s.expect("send_ack", RoleResponder, PhaseAwaitingData); err != nil {
		return err
	}
	if !s.delivered {
		return s.node.invariant("send_ack", ErrPhase, "no payload delivered")
	}
	if err := s.node.sendACK(s.peer); err != nil {
		s.phase = PhaseFailed
		return err
	}
	s.phase = PhaseDone
	return nil
}
