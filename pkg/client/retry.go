package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	docdbRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	docdbRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docdb_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	docdbRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy is an ordered backoff schedule. Delays are consumed front to
// back, one per transient failure, never reordered or skipped; once the
// schedule is exhausted the last transient error surfaces to the caller.
// A policy is a value and is never mutated after construction.
type RetryPolicy struct {
	delays []time.Duration
}

// NewRetryPolicy copies the given delay schedule into an immutable policy.
func NewRetryPolicy(delays ...time.Duration) RetryPolicy {
	d := make([]time.Duration, len(delays))
	copy(d, delays)
	return RetryPolicy{delays: d}
}

// DefaultRetryPolicy returns the standard schedule: 9 attempts with delays of
// 100, 200, 300, 400, 500, 1000, 2000, 3000 and 5000 ms between them
// (roughly 12.5s cumulative).
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(
		100*time.Millisecond,
		200*time.Millisecond,
		300*time.Millisecond,
		400*time.Millisecond,
		500*time.Millisecond,
		1000*time.Millisecond,
		2000*time.Millisecond,
		3000*time.Millisecond,
		5000*time.Millisecond,
	)
}

// Attempts returns the total number of attempts the policy allows, including
// the initial one.
func (p RetryPolicy) Attempts() int {
	return len(p.delays) + 1
}

// Delays returns a copy of the backoff schedule.
func (p RetryPolicy) Delays() []time.Duration {
	d := make([]time.Duration, len(p.delays))
	copy(d, p.delays)
	return d
}

// classify extracts the error class from a failed attempt. Errors that are
// not GatewayErrors were raised by the transport before a response arrived.
func classify(err error) ErrorClass {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ErrorClassNetwork
}

// retryWithPolicy executes fn, retrying classified transient failures on the
// policy's schedule. fn performs one full attempt from the top, so request
// signing runs fresh on every invocation and picks up a new timestamp.
// Permanent errors propagate immediately; once the schedule is exhausted the
// last transient error is returned unchanged.
func retryWithPolicy(ctx context.Context, logger zerolog.Logger, policy RetryPolicy, fn func() error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		class := classify(err)
		if !shouldRetry(class) {
			return err
		}

		lastErr = err

		if attempt > len(policy.delays) {
			break
		}
		delay := policy.delays[attempt-1]

		docdbRetriesTotal.WithLabelValues(string(class)).Inc()
		docdbRetryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	class := classify(lastErr)
	docdbRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("attempts", policy.Attempts()).
		Msg("Retry attempts exhausted")

	// The last transient error propagates unchanged so callers can still
	// inspect its status and class.
	return lastErr
}
