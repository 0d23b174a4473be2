package failover

import (
	"math/rand"
	"time"
)

// Options controls the back-off schedule and endpoint-cycling behavior
// of a failover sequence, per spec.md §4.4. Defaults mirror ActiveMQ's
// failover transport.
type Options struct {
	InitialReconnectDelay       time.Duration
	MaxReconnectDelay           time.Duration
	UseExponentialBackOff       bool
	BackOffMultiplier           float64
	MaxReconnectAttempts        int
	StartupMaxReconnectAttempts int
	Randomize                   bool

	// RandSource seeds the reshuffle performed when Randomize is set.
	// Nil (the default) seeds from the current time, so distinct
	// sessions diverge; tests that need a reproducible order can
	// supply their own source.
	RandSource rand.Source
}

// DefaultOptions returns the option values spec.md §4.4 lists as
// defaults.
func DefaultOptions() Options {
	return Options{
		InitialReconnectDelay:       10 * time.Millisecond,
		MaxReconnectDelay:           30000 * time.Millisecond,
		UseExponentialBackOff:       true,
		BackOffMultiplier:           2.0,
		MaxReconnectAttempts:        -1,
		StartupMaxReconnectAttempts: 0,
		Randomize:                   true,
	}
}
