package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
)

// DefaultRetryDelay is the pause before a pass is re-opened after a transient fault.
const DefaultRetryDelay = 5 * time.Second

// RetryState is the phase of a RetryShell.
type RetryState int

const (
	StateRunning RetryState = iota
	StateRetrying
)

func (s RetryState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("RetryState(%d)", int(s))
	}
}

// RetryPolicy decides which failures restart a pass and how often.
type RetryPolicy struct {
	Delay time.Duration
	// MaxRetries caps restarts; zero means retry for as long as the fault is transient.
	MaxRetries int
	// Retryable defaults to matching domain.ErrTransient.
	Retryable func(error) bool
}

// RetryShell re-runs a whole pass while it fails with a transient fault.
type RetryShell struct {
	name    string
	policy  RetryPolicy
	sleep   Sleeper
	logger  *slog.Logger
	metrics *metrics.Recorder
	observe func(RetryState)
}

// NewRetryShell builds a shell for the named pass.
func NewRetryShell(name string, policy RetryPolicy, sleep Sleeper, logger *slog.Logger, rec *metrics.Recorder) *RetryShell {
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &RetryShell{
		name:    name,
		policy:  policy,
		sleep:   sleep,
		logger:  logging.OrDiscard(logger),
		metrics: rec,
	}
}

// IsTransient reports whether err carries domain.ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}

// Run executes attempt until it succeeds, fails with a non-retryable error, exhausts the
// retry budget, or ctx ends. Each attempt starts from scratch.
func (r *RetryShell) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	state := StateRunning
	retries := 0
	var lastErr error

	for {
		r.enter(state)

		switch state {
		case StateRunning:
			lastErr = attempt(ctx)
			if lastErr == nil {
				return nil
			}
			if ctx.Err() != nil || !r.policy.Retryable(lastErr) {
				return lastErr
			}
			if r.policy.MaxRetries > 0 && retries >= r.policy.MaxRetries {
				return fmt.Errorf("%s: giving up after %d retries: %w", r.name, retries, lastErr)
			}
			r.logger.Warn("transient fault, retrying", "pass", r.name, "retry", retries+1, "delay", r.policy.Delay, "error", lastErr)
			state = StateRetrying

		case StateRetrying:
			retries++
			r.metrics.TransientRetry(r.name)
			if err := r.sleep(ctx, r.policy.Delay); err != nil {
				return errors.Join(lastErr, err)
			}
			state = StateRunning
		}
	}
}

func (r *RetryShell) enter(state RetryState) {
	if r.observe != nil {
		r.observe(state)
	}
}
