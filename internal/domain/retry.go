package domain

import (
	"context"

	"pharmstock/internal/core/apperror"
	"pharmstock/pkg/logger"
)

// conflictRetries bounds transparent retries of optimistic-lock losers.
const conflictRetries = 3

// RetryOnConflict runs fn, retrying the whole logical operation when it
// fails with ConcurrencyConflict. Any other error surfaces immediately.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !apperror.IsConcurrencyConflict(err) {
			return err
		}
		logger.Warn(ctx, "retrying after concurrency conflict", "attempt", attempt+1)
	}
	return err
}
