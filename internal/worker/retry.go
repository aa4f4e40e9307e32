package worker

import "time"

// RetryPolicy grows the wait between failed outbox deliveries geometrically up to MaxDelay.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Exhausted reports whether attempt (1-based) is the last one allowed.
// A zero MaxRetries never gives up.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}

// maxBackoff caps policies that leave MaxDelay unset.
const maxBackoff = time.Hour

// NextDelay returns the wait after the given attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := r.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	ceiling := r.MaxDelay
	if ceiling <= 0 {
		ceiling = maxBackoff
	}

	for i := 1; i < attempt && delay < ceiling; i++ {
		delay = time.Duration(float64(delay) * factor)
	}
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}
