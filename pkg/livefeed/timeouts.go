package livefeed

import (
	"errors"
	"time"
)

// Timeouts configures the deadlines of live feed connections.
type Timeouts struct {
	// Read is the deadline for reading a message from a client, extended by every pong.
	// Zero means no read deadline.
	Read time.Duration

	// Write is the deadline for writing a message to a client.
	// Zero means no write deadline.
	Write time.Duration

	// PingInterval is the interval for sending ping messages. Zero disables pings.
	// Must be less than Read if both are set.
	PingInterval time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:         60 * time.Second,
		Write:        10 * time.Second,
		PingInterval: 50 * time.Second,
	}
}

// Validate checks that the Timeouts configuration is valid.
func (t Timeouts) Validate() error {
	if t.Read < 0 || t.Write < 0 || t.PingInterval < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if t.PingInterval > 0 && t.Read > 0 && t.PingInterval >= t.Read {
		return errors.New("Timeouts.PingInterval must be less than Timeouts.Read when both are set")
	}
	return nil
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
