package mac

import (
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/frame"
)

// Attempt summarises one finished handshake.
type Attempt struct {
	Role    Role
	Peer    addr.Addr
	HasPeer bool
	// Phase is where the session ended: PhaseDone or PhaseFailed.
	Phase   Phase
	Outcome Outcome
	// Payload is the DATA body that went on air: sent by an initiator,
	// received by a responder. Nil when the handshake stopped earlier.
	Payload []byte
}

func (a Attempt) OK() bool { return a.Phase == PhaseDone }

// Bytes is the DATA payload length carried by this attempt.
func (a Attempt) Bytes() int { return len(a.Payload) }

func (s *Session) attempt(out Outcome, payload []byte) Attempt {
	peer, ok := s.Peer()
	return Attempt{
		Role:    s.role,
		Peer:    peer,
		HasPeer: ok,
		Phase:   s.phase,
		Outcome: out,
		Payload: payload,
	}
}

// Initiate runs RTS -> CTS -> DATA -> ACK towards peer. An oversized payload is
// rejected before anything goes on air. A non-nil error is either a
// transport/framing failure ending this attempt or, when IsFatal reports true,
// a bookkeeping violation that must stop the node.
func (n *Node) Initiate(peer addr.Addr, payload []byte) (Attempt, error) {
	if len(payload) > frame.MaxPayloadLen {
		return Attempt{Role: RoleInitiator, Peer: peer, HasPeer: true, Phase: PhaseFailed},
			fmt.Errorf("mac: initiate to %v: %w: payload=%d max=%d", peer, frame.ErrFrameTooLarge, len(payload), frame.MaxPayloadLen)
	}
	s, err := n.OpenInitiator(peer)
	if err != nil {
		return Attempt{Role: RoleInitiator, Peer: peer, HasPeer: true, Phase: PhaseFailed}, err
	}
	defer s.Close()

	if err := s.SendRTS(); err != nil {
		return s.attempt(CTSTimeout, nil), err
	}
	out, err := s.WaitCTS()
	if err != nil || out != Success {
		return s.attempt(out, nil), err
	}
	if err := s.SendMsg(payload); err != nil {
		return s.attempt(ACKTimeout, nil), err
	}
	out, err = s.WaitACK()
	return s.attempt(out, payload), err
}

// Respond runs wait RTS -> CTS -> DATA -> ACK for whichever node asks first.
func (n *Node) Respond() (Attempt, error) {
	s, err := n.OpenResponder()
	if err != nil {
		return Attempt{Role: RoleResponder, Phase: PhaseFailed}, err
	}
	defer s.Close()

	out, err := s.WaitRTS()
	if err != nil || out != Success {
		return s.attempt(out, nil), err
	}
	if err := s.SendCTS(); err != nil {
		return s.attempt(MsgTimeout, nil), err
	}
	payload, out, err := s.RecvMsg()
	if err != nil || out != Success {
		return s.attempt(out, nil), err
	}
	if err := s.SendACK(); err != nil {
		return s.attempt(out, payload), err
	}
	return s.attempt(Success, payload), nil
}
