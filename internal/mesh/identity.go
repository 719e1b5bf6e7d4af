package mesh

import (
	"errors"
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

var ErrNoPeers = errors.New("mesh: no peers besides self")

// Identity answers who this node is and who it may transmit to.
type Identity interface {
	Self() addr.Addr
	Peers() []addr.Addr
}

type StaticIdentity struct {
	self  addr.Addr
	peers []addr.Addr
}

// NewStaticIdentity drops self and duplicates from peers, keeping their order.
func NewStaticIdentity(self addr.Addr, peers []addr.Addr) (StaticIdentity, error) {
	if !self.IsUnicast() {
		return StaticIdentity{}, fmt.Errorf("mesh: self %v: %w", self, addr.ErrInvalidAddr)
	}
	seen := make(map[addr.Addr]struct{}, len(peers))
	out := make([]addr.Addr, 0, len(peers))
	for _, p := range peers {
		if !p.IsUnicast() {
			return StaticIdentity{}, fmt.Errorf("mesh: peer %v: %w", p, addr.ErrInvalidAddr)
		}
		if p == self {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return StaticIdentity{}, ErrNoPeers
	}
	return StaticIdentity{self: self, peers: out}, nil
}

func (s StaticIdentity) Self() addr.Addr { return s.self }

func (s StaticIdentity) Peers() []addr.Addr {
	return append([]addr.Addr(nil), s.peers...)
}
