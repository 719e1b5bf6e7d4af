package mac

import "time"

const (
	DefaultPhaseTimeout    = time.Second
	DefaultLateReplyWindow = 5 * time.Second
)

// Config holds the bounded wait for each receive phase.
type Config struct {
	RTSTimeout  time.Duration
	CTSTimeout  time.Duration
	DataTimeout time.Duration
	ACKTimeout  time.Duration

	// LateReplyWindow is how long a CTS or ACK from a peer asked in an
	// earlier session is treated as a stale reply rather than a violation.
	LateReplyWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		RTSTimeout:      DefaultPhaseTimeout,
		CTSTimeout:      DefaultPhaseTimeout,
		DataTimeout:     DefaultPhaseTimeout,
		ACKTimeout:      DefaultPhaseTimeout,
		LateReplyWindow: DefaultLateReplyWindow,
	}
}

// WithDefaults fills unset or negative timeouts; a wait must never be unbounded.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RTSTimeout <= 0 {
		c.RTSTimeout = d.RTSTimeout
	}
	if c.CTSTimeout <= 0 {
		c.CTSTimeout = d.CTSTimeout
	}
	if c.DataTimeout <= 0 {
		c.DataTimeout = d.DataTimeout
	}
	if c.ACKTimeout <= 0 {
		c.ACKTimeout = d.ACKTimeout
	}
	if c.LateReplyWindow <= 0 {
		c.LateReplyWindow = d.LateReplyWindow
	}
	return c
}
