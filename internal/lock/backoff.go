package lock

import (
	"math/rand"
	"time"
)

// backoff spaces SET NX attempts on a contended key. Delays double from initial up to
// max, and the upper half is randomized so competing processes drift apart.
type backoff struct {
	initial time.Duration
	max     time.Duration
}

var defaultBackoff = backoff{initial: 5 * time.Millisecond, max: 100 * time.Millisecond}

// delay returns the wait after the given attempt (1-based), within [d/2, d].
func (b backoff) delay(attempt int) time.Duration {
	d := b.initial
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d-half+1)))
}
