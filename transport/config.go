package transport

import "time"

// Config holds controller timing and behaviour.
type Config struct {
	// TickRate is the transmit loop cadence in Hz.
	TickRate int
	// ConnectRetry is the pause between failed connection attempts.
	ConnectRetry time.Duration
	// PingInterval is how often a PING request is queued.
	PingInterval time.Duration
	// PIDTolerance is the largest per-term difference at which a PID
	// triple reported by the vehicle counts as applied.
	PIDTolerance float32
	// PIDRetries bounds how many times a PID triple is resent before
	// giving up with ErrNotConfirmed. Zero means retry until ctx is done.
	PIDRetries int
	// Spectate runs the controller as an observer that only forwards queued
	// commands and trusts the metrics reported by the primary controller.
	Spectate bool
	// RealtimePriority raises the scheduling priority of the loop
	// goroutines' OS threads when the platform allows it.
	RealtimePriority bool
}

func DefaultConfig() Config {
	return Config{
		TickRate:         150,
		ConnectRetry:     250 * time.Millisecond,
		PingInterval:     100 * time.Millisecond,
		PIDTolerance:     1e-4,
		PIDRetries:       50,
		RealtimePriority: true,
	}
}

func (c Config) tickPeriod() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 150
	}
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.ConnectRetry <= 0 {
		c.ConnectRetry = d.ConnectRetry
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PIDTolerance <= 0 {
		c.PIDTolerance = d.PIDTolerance
	}
	return c
}
