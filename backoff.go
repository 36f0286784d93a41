package orchestrator

import "time"

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 5 * time.Second
	defaultBackoffCap  = 5 * time.Minute
)

// RetryPolicy is the single retry configuration owned by a stage spec. The
// engine applies it centrally, agent clients carry no retry logic of their
// own.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// task makes at most MaxRetries+1 attempts.
	MaxRetries int
	// BackoffBase is the delay before the first retry. Subsequent retries
	// double the delay.
	BackoffBase time.Duration
	// BackoffCap bounds the doubling.
	BackoffCap time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  defaultMaxRetries,
		BackoffBase: defaultBackoffBase,
		BackoffCap:  defaultBackoffCap,
	}
}

// Delay returns the backoff before the next attempt given the number of
// attempts made so far: base x 2^(attempts-1), capped.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}

	capped := p.BackoffCap
	if capped <= 0 {
		capped = defaultBackoffCap
	}

	if attempts < 1 {
		attempts = 1
	}

	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= capped {
			return capped
		}
	}

	if d > capped {
		return capped
	}

	return d
}
