// Package retry runs an operation under a bounded exponential backoff.
//
// Whether a failure is worth another attempt is decided by a Classifier
// supplied by the caller, so the same combinator serves device opens
// (retry on permission denied only) and any other transient condition.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped into the returned error when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Default policy values.
const (
	DefaultBaseDelay   = 10 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 2 * time.Second
	DefaultMaxAttempts = 6
)

// Policy bounds a retry loop.
type Policy struct {
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
}

// DefaultPolicy returns the policy used for device opens.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Classifier reports whether err is transient.
type Classifier func(err error) bool

// Notify is called after each retryable failure with the wait before the
// next attempt.
type Notify func(attempt int, err error, wait time.Duration)

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempt budget runs out, or ctx is cancelled.
//
// Non-retryable errors are returned as-is. Budget exhaustion returns an
// error wrapping both ErrExhausted and the last failure.
func Do(ctx context.Context, p Policy, retryable Classifier, op func() error, notify Notify) error {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	attempts := 0
	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(wrapped, p.backOff(ctx), onRetry)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if retryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
	}
	return err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBaseDelay
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = DefaultMultiplier
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
