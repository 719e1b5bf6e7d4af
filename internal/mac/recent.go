package mac

import (
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

// recentPeers records when this node last asked each peer for a reply.
type recentPeers struct {
	window time.Duration
	at     map[addr.Addr]time.Time
}

func newRecentPeers(window time.Duration) recentPeers {
	return recentPeers{window: window, at: make(map[addr.Addr]time.Time)}
}

func (r recentPeers) mark(p addr.Addr, now time.Time) {
	r.at[p] = now
}

// within reports whether p was asked no longer than window before now.
func (r recentPeers) within(p addr.Addr, now time.Time) bool {
	t, ok := r.at[p]
	if !ok {
		return false
	}
	if now.Sub(t) > r.window {
		delete(r.at, p)
		return false
	}
	return true
}
