package mac

import (
	"errors"
	"fmt"

	"github.com/danmuck/meshmac/internal/mac/addr"
)

var (
	ErrSessionActive = errors.New("mac: a handshake session is already active")
	ErrSessionClosed = errors.New("mac: session closed")
	ErrPhase         = errors.New("mac: operation out of phase")
	ErrInvalidPeer   = errors.New("mac: invalid peer address")
	ErrUnsolicited   = errors.New("mac: reply from a node never solicited")
)

// InvariantError means the node's own session bookkeeping is wrong. It is not
// a network condition and must not be retried.
type InvariantError struct {
	Node   addr.Addr
	Op     string
	Detail string
	Err    error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("mac: invariant violated node=%v op=%s: %v (%s)", e.Node, e.Op, e.Err, e.Detail)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries an InvariantError.
func IsFatal(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

func (n *Node) invariant(op string, err error, format string, args ...any) *InvariantError {
	return &InvariantError{
		Node:   n.self,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
