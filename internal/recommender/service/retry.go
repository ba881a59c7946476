package service

import (
	"context"
	"time"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/metrics"
)

// withRetry runs op and retries it as many times as its error code allows,
// doubling the delay between attempts. Non-retryable errors return at once.
func (s *Service) withRetry(ctx context.Context, name string, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !apperrors.IsRetryable(err) {
		return err
	}

	maxRetries := apperrors.GetRetryCount(apperrors.Normalize(err).Code)
	delay := s.cfg.RetryBackoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		metrics.StoreRetries.WithLabelValues(name).Inc()
		s.logger.Warn("store operation failed, retrying", map[string]interface{}{
			"operation":   name,
			"attempt":     attempt,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
			"error":       err,
		})

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			delay *= 2
		}

		if err = op(ctx); err == nil || !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}
