package dispatch

import (
	"time"
)

// Config holds the retry and lane tunables for the dispatcher.
type Config struct {
	// MaxAttempts bounds reply attempts per comment, the first one included.
	MaxAttempts int
	// BaseBackoff is the wait before the second attempt. It doubles per retry.
	BaseBackoff time.Duration
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
	// Timeout bounds one comment's whole dispatch, waits included.
	Timeout time.Duration
	// LaneIdle is how long a user's lane lingers without work before exiting.
	LaneIdle time.Duration
	// LaneBuffer is the number of events a lane queues before Submit blocks.
	LaneBuffer int
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 250 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Timeout:     5 * time.Second,
		LaneIdle:    30 * time.Second,
		LaneBuffer:  64,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.LaneIdle <= 0 {
		c.LaneIdle = def.LaneIdle
	}
	if c.LaneBuffer <= 0 {
		c.LaneBuffer = def.LaneBuffer
	}
	return c
}

// backoff returns the wait after the given failed attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	d := c.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}
