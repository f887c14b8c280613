package session

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff spaces out bootstrap attempts that fail before any connection
// exists. A connection that closes is redialed without delay.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: time.Minute, Jitter: 0.1}
}

// Delay returns the wait before the given failed attempt (0-based), doubling
// each time up to Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	d := float64(b.Initial) * math.Pow(2, float64(max(attempt, 0)))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Min(d, float64(b.Max)))
}
