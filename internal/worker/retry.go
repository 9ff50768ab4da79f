package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy is the exponential backoff shared by gateway status lookups and sheet sync.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads each delay by up to this fraction either way, in [0,1].
	Jitter float64

	random func() float64
}

// Attempts is the total number of tries, the first one included.
func (r RetryPolicy) Attempts() int {
	if r.MaxRetries < 0 {
		return 1
	}
	return r.MaxRetries + 1
}

// Exhausted reports whether no retry is left after the given attempt (1-based).
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.Attempts()
}

// NextDelay returns the delay before retrying after the given attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	if j := math.Min(r.Jitter, 1); j > 0 {
		rnd := r.random
		if rnd == nil {
			rnd = rand.Float64
		}
		delay *= 1 + j*(2*rnd()-1)
	}

	d := time.Duration(delay)
	if d <= 0 {
		d = time.Second
	}
	return d
}
