package stats

import (
	"fmt"
	"sync"
	"time"
)

// Tracker holds lifetime transmission counters for one node. One MAC writes
// it; the status surface may read snapshots concurrently.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time

	numSent    uint64
	numAck     uint64
	numRecv    uint64
	bytesAcked uint64
}

type Option func(*Tracker)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	return t
}

func (t *Tracker) RecordSend() {
	t.mu.Lock()
	t.numSent++
	t.mu.Unlock()
}

func (t *Tracker) RecordAck(bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.numAck++
	if bytes > 0 {
		t.bytesAcked += uint64(bytes)
	}
}

func (t *Tracker) RecordRecv() {
	t.mu.Lock()
	t.numRecv++
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		NumSent:    t.numSent,
		NumAck:     t.numAck,
		NumRecv:    t.numRecv,
		BytesAcked: t.bytesAcked,
		Started:    t.started,
		Elapsed:    t.now().Sub(t.started),
	}
}

// Snapshot is a read-only copy of the counters.
type Snapshot struct {
	NumSent    uint64        `json:"num_sent"`
	NumAck     uint64        `json:"num_ack"`
	NumRecv    uint64        `json:"num_recv"`
	BytesAcked uint64        `json:"bytes_acked"`
	Started    time.Time     `json:"started"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// SuccessRate is num_ack/num_sent; ok is false when nothing was sent.
func (s Snapshot) SuccessRate() (float64, bool) {
	if s.NumSent == 0 {
		return 0, false
	}
	return float64(s.NumAck) / float64(s.NumSent), true
}

func (s Snapshot) ThroughputBps() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.BytesAcked) * 8 / secs
}

func (s Snapshot) String() string {
	rate := "NA"
	if r, ok := s.SuccessRate(); ok {
		rate = fmt.Sprintf("%.2f%%", r*100)
	}
	return fmt.Sprintf(
		"----- send:%d/ack:%d/recv:%d/success:%s/throughput:%.2fbps -----",
		s.NumSent,
		s.NumAck,
		s.NumRecv,
		rate,
		s.ThroughputBps(),
	)
}
