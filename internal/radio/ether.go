package radio

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

const portQueueLen = 64

// DropFunc decides whether a transmission is lost on its way to one listener.
type DropFunc func(p Packet, to addr.Addr) bool

// Ether is an in-memory shared medium. Every transmission reaches every other
// attached port regardless of destination, as on a real radio channel.
type Ether struct {
	mu      sync.Mutex
	ports   map[addr.Addr]*Port
	drop    DropFunc
	corrupt DropFunc
	hold    time.Duration
	seq     uint8
}

func NewEther() *Ether {
	return &Ether{ports: make(map[addr.Addr]*Port)}
}

// SetDrop installs a loss model; nil delivers everything.
func (e *Ether) SetDrop(fn DropFunc) {
	e.mu.Lock()
	e.drop = fn
	e.mu.Unlock()
}

// SetCorrupt installs a noise model: a matching transmission still reaches the
// listener but fails to decode there. nil keeps every packet intact.
func (e *Ether) SetCorrupt(fn DropFunc) {
	e.mu.Lock()
	e.corrupt = fn
	e.mu.Unlock()
}

// SetHoldTime bounds how long a packet waits in a port queue before the
// receiver forgets it, like a radio FIFO overwritten while not listening.
// Zero keeps packets until read.
func (e *Ether) SetHoldTime(d time.Duration) {
	e.mu.Lock()
	e.hold = d
	e.mu.Unlock()
}

func (e *Ether) holdTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hold
}

func (e *Ether) Attach(a addr.Addr) (*Port, error) {
	if !a.IsUnicast() {
		return nil, fmt.Errorf("radio: attach %v: %w", a, addr.ErrInvalidAddr)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ports[a]; ok {
		return nil, fmt.Errorf("%w: %v", ErrAddrInUse, a)
	}
	p := &Port{
		ether:  e,
		addr:   a,
		rx:     make(chan queued, portQueueLen),
		closed: make(chan struct{}),
	}
	e.ports[a] = p
	return p, nil
}

func (e *Ether) detach(p *Port) {
	e.mu.Lock()
	if e.ports[p.addr] == p {
		delete(e.ports, p.addr)
	}
	e.mu.Unlock()
}

func (e *Ether) broadcast(from *Port, pkt Packet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pkt.ID = e.seq
	e.seq++
	for a, p := range e.ports {
		if p == from {
			continue
		}
		if e.drop != nil && e.drop(pkt, a) {
			continue
		}
		p.deliver(clonePacket(pkt), e.corrupt != nil && e.corrupt(pkt, a))
	}
}

type queued struct {
	pkt     Packet
	at      time.Time
	corrupt bool
}

// Port is one node's attachment to an Ether. It implements Transport.
type Port struct {
	ether *Ether
	addr  addr.Addr
	rx    chan queued

	mu     sync.Mutex
	txLog  []Packet
	closed chan struct{}
	once   sync.Once
}

var _ Transport = (*Port)(nil)

func (p *Port) Addr() addr.Addr { return p.addr }

func (p *Port) Send(frame []byte, src, dst addr.Addr) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	if len(frame) > MaxFrameLen {
		return fmt.Errorf("%w: frame=%d max=%d", ErrTooLarge, len(frame), MaxFrameLen)
	}
	pkt := clonePacket(Packet{Src: src, Dst: dst, Data: frame, RSSI: RSSIUnknown})
	p.mu.Lock()
	p.txLog = append(p.txLog, clonePacket(pkt))
	p.mu.Unlock()
	p.ether.broadcast(p, pkt)
	return nil
}

func (p *Port) Receive(timeout time.Duration) (Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	hold := p.ether.holdTime()
	for {
		select {
		case q := <-p.rx:
			if hold > 0 && time.Since(q.at) > hold {
				continue
			}
			if q.corrupt {
				return Packet{}, fmt.Errorf("%w: from %v", ErrCorrupt, q.pkt.Src)
			}
			return q.pkt, nil
		case <-p.closed:
			return Packet{}, ErrClosed
		case <-timer.C:
			return Packet{}, ErrTimeout
		}
	}
}

// Inject queues a packet as if it had been heard on the air.
func (p *Port) Inject(pkt Packet) {
	p.ether.mu.Lock()
	p.deliver(clonePacket(pkt), false)
	p.ether.mu.Unlock()
}

// TxLog returns copies of everything this port transmitted.
func (p *Port) TxLog() []Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Packet, len(p.txLog))
	for i, pkt := range p.txLog {
		out[i] = clonePacket(pkt)
	}
	return out
}

func (p *Port) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.ether.detach(p)
	})
	return nil
}

// deliver must be called with the ether lock held. A full queue drops its oldest packet.
func (p *Port) deliver(pkt Packet, corrupt bool) {
	q := queued{pkt: pkt, at: time.Now(), corrupt: corrupt}
	for {
		select {
		case p.rx <- q:
			return
		default:
		}
		select {
		case <-p.rx:
		default:
		}
	}
}
