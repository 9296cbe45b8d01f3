// Package retry wraps outbound calls in bounded retry with exponential
// backoff. Every LLM, search, fetch and workspace API call in the pipeline
// goes through it.
package retry

import (
	"context"
	"errors"
	"log"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseWait    = 1 * time.Second
	defaultMaxWait     = 10 * time.Second
)

// Policy controls attempt count, backoff shape and which errors retry.
type Policy struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
	// Retryable reports whether an error is worth another attempt.
	// A nil classifier retries everything.
	Retryable func(error) bool
	// Jitter, when set, maps the capped backoff to the actual sleep.
	// Rate-limited callers use it to spread concurrent retries.
	Jitter func(time.Duration) time.Duration
	Logger *log.Logger
}

// Default is the policy used when callers have no special requirements:
// three attempts, 1s -> 2s -> 4s backoff capped at 10s, everything retried.
func Default() Policy { return Policy{} }

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseWait <= 0 {
		p.BaseWait = defaultBaseWait
	}
	if p.MaxWait <= 0 {
		p.MaxWait = defaultMaxWait
	}
	if p.Logger == nil {
		p.Logger = log.New(log.Writer(), "[RETRY] ", log.LstdFlags)
	}
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying even under a retry-everything
// policy. Do strips the marker before returning, so callers always see the
// original error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op up to the policy's attempt budget. Between attempts it sleeps
// with exponential backoff, logging a warning first. The error returned after
// exhaustion is the last failure itself, unwrapped and unmodified, so
// errors.Is and errors.As keep working on it.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) { return struct{}{}, op(ctx) })
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxAttempts-1 {
			break
		}
		wait := p.wait(attempt)
		p.Logger.Printf("WARN: attempt %d/%d failed: %v (retrying in %s)", attempt+1, p.MaxAttempts, err, wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// wait computes the backoff before the next attempt: base * 2^attempt,
// capped at MaxWait, then jittered when the policy asks for it.
func (p Policy) wait(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30 // avoid shift overflow, the cap applies anyway
	}
	wait := p.BaseWait * time.Duration(1<<uint(attempt))
	if wait > p.MaxWait || wait <= 0 {
		wait = p.MaxWait
	}
	if p.Jitter != nil {
		wait = p.Jitter(wait)
	}
	return wait
}
