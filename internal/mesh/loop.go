package mesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/meshmac/internal/mac"
	"github.com/danmuck/meshmac/internal/mac/frame"
	"github.com/danmuck/meshmac/internal/observability"
	"github.com/danmuck/meshmac/internal/radio"
	logs "github.com/danmuck/smplog"
)

const DefaultInitiateRatio = 0.5

var ErrIdentityMismatch = errors.New("mesh: identity does not match node address")

// Config drives role selection, backoff and payload sizing for a Loop.
type Config struct {
	InitiateRatio float64
	Backoff       BackoffConfig
	PayloadLen    int
}

func DefaultConfig() Config {
	return Config{
		InitiateRatio: DefaultInitiateRatio,
		Backoff:       DefaultBackoff(),
		PayloadLen:    frame.MaxPayloadLen,
	}
}

func (c Config) Validate() error {
	if c.InitiateRatio < 0 || c.InitiateRatio > 1 {
		return fmt.Errorf("mesh: initiate ratio %v not in [0,1]", c.InitiateRatio)
	}
	if c.PayloadLen < colorLen || c.PayloadLen > frame.MaxPayloadLen {
		return fmt.Errorf("%w: %d", ErrPayloadLen, c.PayloadLen)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("mesh: negative backoff delay")
	}
	return nil
}

// SleepFunc pauses for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Loop is the outer control loop for one node. It alternates randomly
// between initiating and responding, one handshake per Step.
type Loop struct {
	node  *mac.Node
	id    Identity
	ind   Indicator
	cfg   Config
	rng   *rand.Rand
	sleep SleepFunc
	label string

	busy       int
	iterations uint64
}

type Option func(*Loop)

func WithRand(rng *rand.Rand) Option {
	return func(l *Loop) {
		if rng != nil {
			l.rng = rng
		}
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(l *Loop) {
		if fn != nil {
			l.sleep = fn
		}
	}
}

func NewLoop(node *mac.Node, id Identity, ind Indicator, cfg Config, opts ...Option) (*Loop, error) {
	if node == nil || id == nil {
		return nil, errors.New("mesh: loop requires a node and an identity")
	}
	if id.Self() != node.Self() {
		return nil, fmt.Errorf("%w: identity=%v node=%v", ErrIdentityMismatch, id.Self(), node.Self())
	}
	if len(id.Peers()) == 0 {
		return nil, ErrNoPeers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ind == nil {
		ind = LogIndicator{Node: node.Self()}
	}
	l := &Loop{
		node:  node,
		id:    id,
		ind:   ind,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepContext,
		label: node.Self().String(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run steps until ctx ends, the transport closes, or an invariant breaks.
// Only the last case is reported as an error once ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	logs.Infof("mesh.Loop.Run start node=%v peers=%v ratio=%.2f", l.node.Self(), l.id.Peers(), l.cfg.InitiateRatio)
	for {
		if ctx.Err() != nil {
			logs.Infof("mesh.Loop.Run stop node=%v iterations=%d", l.node.Self(), l.iterations)
			return nil
		}
		_, err := l.Step(ctx)
		switch {
		case err == nil:
		case mac.IsFatal(err):
			logs.Errorf(err, "mesh.Loop.Run fatal node=%v", l.node.Self())
			return err
		case errors.Is(err, radio.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				logs.Infof("mesh.Loop.Run stop node=%v iterations=%d", l.node.Self(), l.iterations)
				return nil
			}
			return err
		default:
			logs.Warnf("mesh.Loop.Run attempt failed node=%v err=%v", l.node.Self(), err)
		}
	}
}

// Step runs exactly one handshake attempt in a randomly chosen role, then
// backs off if the channel was reported busy.
func (l *Loop) Step(ctx context.Context) (mac.Attempt, error) {
	var (
		a   mac.Attempt
		err error
	)
	if l.rng.Float64() < l.cfg.InitiateRatio {
		a, err = l.initiate()
	} else {
		a, err = l.respond()
	}
	l.iterations++
	observability.RecordAttempt(l.label, a, err)
	logs.Infof("mesh.Loop.Step report node=%v role=%s outcome=%s %s", l.node.Self(), a.Role, a.Outcome, l.node.Stats())
	if err != nil {
		return a, err
	}

	if !a.Outcome.Busy() {
		l.busy = 0
		return a, nil
	}
	l.busy++
	delay := NextBackoffDelay(l.cfg.Backoff, l.busy, l.rng)
	logs.Infof("mesh.Loop.Step channel busy node=%v busy=%d sleep=%s", l.node.Self(), l.busy, delay)
	l.ind.Show(Idle)
	if err := l.sleep(ctx, delay); err != nil {
		return a, err
	}
	return a, nil
}

func (l *Loop) initiate() (mac.Attempt, error) {
	l.ind.Show(Transmit)
	peers := l.id.Peers()
	peer := peers[l.rng.Intn(len(peers))]
	palette := Palette()
	color := palette[l.rng.Intn(len(palette))]
	payload, err := EncodeColor(color.RGB, l.cfg.PayloadLen)
	if err != nil {
		return mac.Attempt{Role: mac.RoleInitiator, Phase: mac.PhaseFailed}, err
	}
	logs.Debugf("mesh.Loop.initiate node=%v peer=%v color=%s", l.node.Self(), peer, color.Name)
	return l.node.Initiate(peer, payload)
}

func (l *Loop) respond() (mac.Attempt, error) {
	l.ind.Show(Receive)
	a, err := l.node.Respond()
	if err != nil || !a.OK() {
		return a, err
	}
	c, derr := DecodeColor(a.Payload)
	if derr != nil {
		logs.Warnf("mesh.Loop.respond undecodable payload node=%v from=%v err=%v", l.node.Self(), a.Peer, derr)
		return a, nil
	}
	logs.Infof("mesh.Loop.respond color node=%v from=%v color=%s", l.node.Self(), a.Peer, ColorName(c))
	l.ind.Show(ColorStatus(c))
	return a, nil
}

// Iterations counts finished Steps.
func (l *Loop) Iterations() uint64 { return l.iterations }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
