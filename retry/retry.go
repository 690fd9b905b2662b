// Package retry provides bounded exponential backoff with differentiated
// handling for rate-limit, transient, and fatal failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Class categorizes a failed attempt.
type Class int

const (
	// ClassFatal means the call must not be retried (malformed request,
	// not-found conditions the caller treats as structural, etc.).
	ClassFatal Class = iota
	// ClassTransient means a server-side or network failure worth retrying.
	ClassTransient
	// ClassRateLimited means the remote signalled explicit throttling.
	// Rate-limited waits use a separate, longer base delay plus jitter.
	ClassRateLimited
)

// Classifier maps an error to its retry class.
type Classifier func(error) Class

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// BaseDelay is the initial delay for transient failures.
	BaseDelay time.Duration
	// RateLimitBase is the initial delay for rate-limited failures.
	RateLimitBase time.Duration
	// MaxBackoff caps any single wait.
	MaxBackoff time.Duration
	// JitterFraction is the fraction of a rate-limit wait used for jitter (0.0-1.0).
	JitterFraction float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		RateLimitBase:  10 * time.Second,
		MaxBackoff:     2 * time.Minute,
		JitterFraction: 0.2,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. Callers treat it as "this call failed for this entity" rather than
// aborting the whole run.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err is a retry exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// sleep waits for d or until ctx is done. Overridable in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn with bounded retry. Each failure is classified; fatal
// errors propagate immediately, transient and rate-limited errors are
// retried with exponential backoff on their respective base delays.
func Do(ctx context.Context, cfg Config, classify Classifier, fn func(context.Context) error) error {
	if classify == nil {
		classify = func(error) Class { return ClassTransient }
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		class := classify(err)
		if class == ClassFatal {
			return err
		}

		// Last attempt, don't sleep
		if attempt == cfg.MaxRetries-1 {
			break
		}

		wait := backoff(cfg, class, attempt)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: cfg.MaxRetries, Err: lastErr}
}

// backoff computes the wait after the given zero-based failed attempt.
func backoff(cfg Config, class Class, attempt int) time.Duration {
	base := cfg.BaseDelay
	if class == ClassRateLimited {
		base = cfg.RateLimitBase
	}

	wait := base << uint(attempt)
	if class == ClassRateLimited {
		wait += jitter(wait, cfg.JitterFraction)
	}
	if cfg.MaxBackoff > 0 && wait > cfg.MaxBackoff {
		wait = cfg.MaxBackoff
	}
	return wait
}

// jitter returns a random duration in range [-fraction*d, +fraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	jitterRange := float64(d) * fraction
	return time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
}
