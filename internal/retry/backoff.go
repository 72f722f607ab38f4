package retry

import "time"

// Backoff tracks one retry sequence: attempts made, the last error and the
// delay owed before the next attempt.
type Backoff struct {
	maxAttempts int
	maxDelay    time.Duration
	multiplier  float64

	attempts  int
	nextDelay time.Duration
	lastErr   error
}

// NewBackoff starts a sequence with no attempts recorded.
func NewBackoff(cfg Config) *Backoff {
	cfg.setDefaults()
	return &Backoff{
		maxAttempts: cfg.MaxAttempts,
		maxDelay:    cfg.MaxDelay,
		multiplier:  cfg.Multiplier,
		nextDelay:   cfg.InitialDelay,
	}
}

// Next records a failed attempt and returns the delay before the next one.
// ok is false once the attempt budget is spent.
func (b *Backoff) Next(err error) (delay time.Duration, ok bool) {
	b.attempts++
	b.lastErr = err

	if b.attempts >= b.maxAttempts {
		return 0, false
	}

	delay = min(b.nextDelay, b.maxDelay)
	b.nextDelay = time.Duration(float64(b.nextDelay) * b.multiplier)

	return delay, true
}

// Attempts returns the number of failed attempts recorded.
func (b *Backoff) Attempts() int { return b.attempts }

// LastError returns the most recent failure.
func (b *Backoff) LastError() error { return b.lastErr }
