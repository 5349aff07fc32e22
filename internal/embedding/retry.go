package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/rallylog/internal/apperr"
)

// retryWithBackoff runs op up to attempts times, sleeping baseDelay,
// 2*baseDelay, ... between tries. It stops early on context cancellation and
// on errors that cannot succeed on retry.
func retryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, logger *slog.Logger, op func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("embedding: succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		if errors.Is(lastErr, apperr.ErrInvalidInput) || attempt == attempts {
			break
		}

		logger.Debug("embedding: attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", lastErr.Error()))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
