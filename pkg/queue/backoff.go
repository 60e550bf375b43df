package queue

import (
	"math/rand"
	"time"
)

// Backoff defaults
const (
	// DefaultBackoffBase scales the schedule; the first retry waits
	// twice this.
	DefaultBackoffBase = 2 * time.Second

	// DefaultBackoffCap bounds the exponential growth.
	DefaultBackoffCap = 5 * time.Minute

	// DefaultJitterRatio spreads retry deadlines so queued clients do not
	// reconnect in lockstep.
	DefaultJitterRatio = 0.1
)

// BackoffPolicy computes retry delays as capped exponential backoff with
// proportional jitter.
//
// The delay is derived purely from the retry count, never from in-process
// state, so a request reloaded from storage after a restart resumes exactly
// where its persisted RetryCount left it.
type BackoffPolicy struct {
	// Base scales the schedule; the delay for retryCount failures is
	// min(Base*2^retryCount, Cap).
	Base time.Duration

	// Cap bounds the exponential growth.
	Cap time.Duration

	// JitterRatio scales the random spread: a final delay lands in
	// [delay*(1-r), delay*(1+r)]. Zero disables jitter.
	JitterRatio float64

	// rand overrides the jitter source in tests.
	rand func() float64
}

// NewBackoffPolicy returns a policy with defaults filled in for zero fields.
func NewBackoffPolicy(base, ceiling time.Duration, jitterRatio float64) BackoffPolicy {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCap
	}
	return BackoffPolicy{Base: base, Cap: ceiling, JitterRatio: jitterRatio}
}

// Delay returns the wait before attempt retryCount+1. retryCount is the
// number of failures so far; the schedule is min(Base*2^retryCount, Cap),
// so the first retry (retryCount=1) waits 2*Base around the jitter.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := p.Base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= p.Cap || delay < 0 {
			delay = p.Cap
			break
		}
	}
	if delay > p.Cap {
		delay = p.Cap
	}

	if p.JitterRatio > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		// Uniform in [-JitterRatio, +JitterRatio]
		spread := (2*r() - 1) * p.JitterRatio
		delay = time.Duration(float64(delay) * (1 + spread))
	}

	return delay
}
