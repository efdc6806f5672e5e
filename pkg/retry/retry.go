// Package retry provides bounded retry with exponential backoff for remote
// Drive calls. Only errors classified as transient are retried; everything
// else surfaces to the caller on the first failure.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/drivefs/drivefs/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the factor by which delay grows after each retry.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter adds randomness to delays to prevent thundering herd.
	Jitter bool `yaml:"jitter"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// DefaultConfig returns the default retry envelope: bounded attempts with
// exponential growth capped at 20s, mirroring the drive API guidance.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  8,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     20 * time.Second,
		Multiplier:   1.618,
		Jitter:       true,
	}
}

// Retryer executes operations under the configured retry policy.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling zero config values with defaults.
func New(config Config) *Retryer {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. A spent budget of transient failures surfaces
// as a Timeout-kind error naming op.
func (r *Retryer) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Classify(op, "", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return errors.Classify(op, "", ctx.Err())
		case <-time.After(delay):
		}
	}

	if errors.IsRetryable(lastErr) {
		return errors.E(errors.KindTimeout, op, "", lastErr)
	}
	return lastErr
}

// delay computes the backoff before the next attempt.
func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		// ±20% spread
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// Attempts reports the configured attempt budget.
func (r *Retryer) Attempts() int { return r.config.MaxAttempts }

// Permanent marks an error as non-retryable even if it would otherwise
// classify as transient, for callers that must not re-issue a mutation.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Retryable() {
		return errors.E(errors.KindFatal, e.Op, e.Path, err)
	}
	return err
}
