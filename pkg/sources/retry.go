package sources

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gridpulse/resload/pkg/forecast"
)

// DefaultAttempts is the total number of tries for one upstream call,
// including the first.
const DefaultAttempts = 3

// retryPolicy builds the shared backoff: short exponential waits, bounded
// attempts, aborted by context cancellation.
func retryPolicy(ctx context.Context, attempts uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
}

// retryable wraps an operation so only transient failures are retried.
// Validation, auth and integrity errors abort immediately.
func retryable(op func() error) func() error {
	return func() error {
		err := op()
		if err == nil {
			return nil
		}
		if forecast.Transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
}

// FetchDemand calls src.Fetch with retries on transient failures.
func FetchDemand(ctx context.Context, src DemandSource, issue time.Time, horizonDays int, attempts uint64) (forecast.Demand, error) {
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	var out forecast.Demand
	err := backoff.Retry(retryable(func() error {
		d, err := src.Fetch(ctx, issue, horizonDays)
		if err != nil {
			return err
		}
		out = d
		return nil
	}), retryPolicy(ctx, attempts))
	if err != nil {
		return forecast.Demand{}, err
	}
	return out, nil
}

// FetchRenewable calls src.Fetch with retries on transient failures.
func FetchRenewable(ctx context.Context, src RenewableSource, model forecast.Model, issue time.Time, attempts uint64) (forecast.Renewable, error) {
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	var out forecast.Renewable
	err := backoff.Retry(retryable(func() error {
		r, err := src.Fetch(ctx, model, issue)
		if err != nil {
			return err
		}
		out = r
		return nil
	}), retryPolicy(ctx, attempts))
	if err != nil {
		return forecast.Renewable{}, err
	}
	return out, nil
}
