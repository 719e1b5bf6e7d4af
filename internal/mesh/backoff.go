package mesh

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig shapes the pause after a busy channel signal.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   1.0,
		MaxDelay:     5 * time.Second,
	}
}

// NextBackoffDelay returns the pause for the Nth consecutive busy signal (1-based).
// Jitter scales the delay into [0.5, 1.5) so colliding nodes drift apart.
func NextBackoffDelay(cfg BackoffConfig, busy int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if busy < 1 {
		busy = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(busy-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 1.0
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
