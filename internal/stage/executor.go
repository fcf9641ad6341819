package stage

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultAttemptTimeout = 2 * time.Minute
)

// Executor wraps a collaborator call with a per-attempt deadline and bounded
// retry. Only transient errors are retried; permanent and input errors
// propagate immediately. The executor holds no state between invocations.
type Executor struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// NewExecutor returns an executor with the given attempt cap and per-attempt
// timeout; zero values fall back to defaults.
func NewExecutor(maxAttempts int, attemptTimeout time.Duration) *Executor {
	e := &Executor{
		MaxAttempts:    maxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		AttemptTimeout: attemptTimeout,
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = defaultMaxAttempts
	}
	if e.AttemptTimeout <= 0 {
		e.AttemptTimeout = defaultAttemptTimeout
	}
	return e
}

// Run executes fn under the retry policy. Each attempt runs under its own
// deadline and is logged with job id, stage, attempt number and duration.
func (e *Executor) Run(ctx context.Context, jobID, stageName string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.AttemptTimeout)
		start := time.Now()
		err := fn(attemptCtx)
		cancel()
		duration := time.Since(start)

		if err == nil {
			log.Printf("stage %s succeeded: job=%s attempt=%d duration=%s", stageName, jobID, attempt, duration.Round(time.Millisecond))
			return nil
		}

		lastErr = err
		log.Printf("stage %s failed: job=%s attempt=%d duration=%s kind=%s err=%v",
			stageName, jobID, attempt, duration.Round(time.Millisecond), KindOf(err), err)

		if !Retryable(err) {
			return err
		}
		if attempt == e.MaxAttempts {
			break
		}

		backoff := e.backoff(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("stage %s exhausted %d attempts: %w", stageName, e.MaxAttempts, lastErr)
}

// backoff returns the exponential delay before the next attempt, with up to
// 25% jitter so concurrent jobs don't hammer a recovering collaborator in
// lockstep.
func (e *Executor) backoff(attempt int) time.Duration {
	initial := e.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := e.MaxBackoff
	if max <= 0 {
		max = defaultMaxBackoff
	}

	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	jitter := rand.Int63n(int64(d)/4 + 1)
	return time.Duration(int64(d) + jitter)
}
