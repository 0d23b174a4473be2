package failover

import (
	"math/rand"
	"time"

	"github.com/sergey-sobolev/stompest/errors"
)

// Iterator produces the deterministic (endpoint, delay) sequence a caller
// walks through while reconnecting, per spec.md §4.4 and §8 scenario 5.
type Iterator struct {
	uri     *URI
	order   []int
	attempt int
	rand    *rand.Rand
}

// Sequence starts a fresh failover sequence over the URI's endpoints.
func (u *URI) Sequence() *Iterator {
	source := u.Options.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	it := &Iterator{
		uri:  u,
		rand: rand.New(source),
	}
	it.resetOrder()
	return it
}

// Reset rewinds the sequence back to its first attempt, reshuffling the
// endpoint order if randomization is enabled.
func (it *Iterator) Reset() {
	it.attempt = 0
	it.resetOrder()
}

func (it *Iterator) resetOrder() {
	n := len(it.uri.Endpoints)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if it.uri.Options.Randomize {
		it.rand.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	it.order = order
}

// maxAttempts returns the cap on reconnect attempts after the first
// pair, so the sequence yields at most maxAttempts+1 (endpoint, delay)
// pairs; a negative value means no cap. StartupMaxReconnectAttempts
// overrides MaxReconnectAttempts only before the URI has ever completed a
// successful connect.
func (it *Iterator) maxAttempts() int {
	opts := it.uri.Options
	if !it.uri.everConnected && opts.StartupMaxReconnectAttempts > 0 {
		return opts.StartupMaxReconnectAttempts
	}
	return opts.MaxReconnectAttempts
}

// Next returns the next endpoint to try and how long to wait before trying
// it. The very first pair always carries a zero delay. Once the configured
// attempt budget is exhausted it returns a FAILOVER_EXHAUSTED error.
func (it *Iterator) Next() (Endpoint, time.Duration, error) {
	max := it.maxAttempts()
	if max >= 0 && it.attempt > max {
		return Endpoint{}, 0, errors.Newf(errors.ErrCodeFailoverExhausted,
			"failover sequence exhausted after %d attempts", it.attempt)
	}

	n := len(it.order)
	if it.attempt > 0 && it.attempt%n == 0 && it.uri.Options.Randomize {
		it.resetOrder()
	}

	idx := it.order[it.attempt%n]
	endpoint := it.uri.Endpoints[idx]
	delay := it.delayFor(it.attempt)

	it.attempt++
	return endpoint, delay, nil
}

func (it *Iterator) delayFor(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}
	opts := it.uri.Options
	if !opts.UseExponentialBackOff {
		return opts.InitialReconnectDelay
	}
	delay := time.Duration(float64(opts.InitialReconnectDelay) * pow(opts.BackOffMultiplier, float64(attempt-1)))
	if delay > opts.MaxReconnectDelay {
		delay = opts.MaxReconnectDelay
	}
	return delay
}

// pow is a minimal power implementation, avoiding a dependency on the math
// package for a single exponentiation.
func pow(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := base
	for i := 1; i < int(exp); i++ {
		result *= base
	}
	return result
}
