// Package retry provides bounded retries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context ends between attempts.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
	// IsRetryable decides whether an error earns another attempt.
	IsRetryable func(error) bool
	// OnRetry runs after a retryable failure, before sleeping.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep replaces the real timer in tests.
	Sleep SleepFunc
}

// DefaultConfig returns 3 attempts starting at 100ms and doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  DefaultIsRetryable,
		Sleep:        SleepContext,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.IsRetryable == nil {
		c.IsRetryable = d.IsRetryable
	}
	if c.Sleep == nil {
		c.Sleep = d.Sleep
	}
}

// retryablePatterns match transient network failures by message.
var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"network is unreachable",
	"eof",
}

// DefaultIsRetryable reports whether err looks like a transient network failure.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// SleepContext waits for d using a timer and returns early with ctx.Err().
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts. Non-retryable errors are returned unwrapped.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	cfg.setDefaults()
	backoff := NewBackoff(cfg)

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}

		if !cfg.IsRetryable(err) {
			return err
		}

		delay, ok := backoff.Next(err)
		if !ok {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, backoff.Attempts(), err)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(backoff.Attempts(), err, delay)
		}

		if sleepErr := cfg.Sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, sleepErr)
		}
	}
}
