package core

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackoff returns the retry policy shared by every network-facing adapter:
// 50ms initial interval, 1.5x multiplier, 0.5 jitter, 3s interval cap and a
// 60s elapsed-time budget.
func NewBackoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 3 * time.Second
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 60 * time.Second
	return backoff.WithContext(bo, ctx)
}

// Retry runs op under the standard policy. Wrap an error with
// backoff.Permanent to stop early on non-retriable failures.
func Retry(ctx context.Context, op func() error) error {
	return backoff.Retry(op, NewBackoff(ctx))
}
