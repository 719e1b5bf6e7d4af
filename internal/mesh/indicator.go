package mesh

import (
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
	logs "github.com/danmuck/smplog"
)

type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

type StatusKind uint8

const (
	StatusIdle StatusKind = iota
	StatusTransmit
	StatusReceive
	StatusColor
)

// Status is what the node's indicator light should show.
type Status struct {
	Kind  StatusKind
	Color RGB
}

var (
	Idle     = Status{Kind: StatusIdle}
	Transmit = Status{Kind: StatusTransmit, Color: RGB{R: 255}}
	Receive  = Status{Kind: StatusReceive, Color: RGB{B: 255}}
)

func ColorStatus(c RGB) Status { return Status{Kind: StatusColor, Color: c} }

func (s Status) String() string {
	switch s.Kind {
	case StatusIdle:
		return "idle"
	case StatusTransmit:
		return "transmit"
	case StatusReceive:
		return "receive"
	case StatusColor:
		return "color(" + ColorName(s.Color) + ")"
	default:
		return fmt.Sprintf("status(%d)", uint8(s.Kind))
	}
}

// Indicator is driven by the control loop only.
type Indicator interface {
	Show(Status)
}

// LogIndicator stands in for an LED on hosts without one.
type LogIndicator struct {
	Node addr.Addr
}

func (l LogIndicator) Show(s Status) {
	logs.Debugf("mesh.LogIndicator.Show node=%v status=%s rgb=%s", l.Node, s, s.Color)
}
