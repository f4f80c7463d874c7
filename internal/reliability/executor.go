// Package reliability wraps the execution of an already-allowed tool
// call with a wall-clock timeout and bounded retries, reporting each
// outcome to the circuit breaker. It never makes decisions; it only
// runs what the engine has permitted.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrTimeout is returned when an attempt exceeds the wall-clock timeout.
// The underlying operation is abandoned, not cancelled: work that does
// not observe the context keeps running in the background and may still
// have side effects after this error is returned.
var ErrTimeout = errors.New("operation timed out")

// RetriesExceededError is returned when every attempt failed. It wraps
// the last underlying error.
type RetriesExceededError struct {
	Attempts int
	Last     error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExceededError) Unwrap() error { return e.Last }

// RetryConfig tunes the backoff schedule.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
	Jitter       bool // uniform multiplier in [0.5, 1.5)
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Base:         2.0,
		Jitter:       true,
	}
}

// OutcomeRecorder receives execution outcomes. *breaker.CircuitBreaker
// satisfies it.
type OutcomeRecorder interface {
	RecordSuccess(toolName string)
	RecordFailure(toolName string)
}

// Executor runs operations with timeout and retry. A nil recorder
// disables breaker feedback.
type Executor struct {
	timeout  time.Duration
	retry    RetryConfig
	recorder OutcomeRecorder

	sleep func(time.Duration)
	rand  func() float64
}

// NewExecutor creates an executor. A timeout of 0 disables the
// per-attempt deadline.
func NewExecutor(timeout time.Duration, retry RetryConfig, recorder OutcomeRecorder) *Executor {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if retry.Base < 1 {
		retry.Base = DefaultRetryConfig().Base
	}
	return &Executor{
		timeout:  timeout,
		retry:    retry,
		recorder: recorder,
		sleep:    time.Sleep,
		rand:     rand.Float64,
	}
}

// Operation is a cooperative unit of work. It should observe ctx; work
// that ignores it cannot be stopped, only abandoned.
type Operation func(ctx context.Context) (any, error)

// Execute runs op with per-attempt timeout and retries with exponential
// backoff. The first successful attempt's value is returned. When every
// attempt fails, the result is a *RetriesExceededError wrapping the last
// failure. Outcomes are reported to the recorder under toolName.
func (e *Executor) Execute(ctx context.Context, toolName string, op Operation) (any, error) {
	var lastErr error

	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(e.backoff(attempt - 1))
		}

		val, err := e.runOnce(ctx, op)
		if err == nil {
			if e.recorder != nil {
				e.recorder.RecordSuccess(toolName)
			}
			return val, nil
		}

		lastErr = err
		if e.recorder != nil {
			e.recorder.RecordFailure(toolName)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &RetriesExceededError{Attempts: e.retry.MaxAttempts, Last: lastErr}
}

// runOnce executes one attempt, abandoning it on timeout. The result of
// an abandoned attempt is discarded via the buffered channel.
func (e *Executor) runOnce(ctx context.Context, op Operation) (any, error) {
	if e.timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := op(attemptCtx)
		done <- result{val, err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
	}
}

// backoff computes the delay before attempt n+1:
// min(maxDelay, initial × base^n), optionally jittered.
func (e *Executor) backoff(n int) time.Duration {
	delay := float64(e.retry.InitialDelay) * math.Pow(e.retry.Base, float64(n))
	if e.retry.Jitter {
		delay *= 0.5 + e.rand()
	}
	if max := float64(e.retry.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}
