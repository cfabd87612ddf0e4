package worker

import "time"

// RetryPolicy is the backoff schedule for failed deliveries. Zero fields take
// the defaults: 3 retries starting at 1s, doubling, capped at 30s.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay is the wait before retrying after the given failed attempt (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	r = r.withDefaults()
	d := float64(r.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= r.BackoffFactor
		if time.Duration(d) >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	return min(time.Duration(d), r.MaxDelay)
}
