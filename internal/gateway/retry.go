package gateway

import (
	"context"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used for read-path refreshes.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. Only NETWORK_ERROR failures are retried.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := policy.delay(attempt)
		logging.Debug("Retrying request", map[string]interface{}{
			"attempt": attempt + 1,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.NewNetwork("retry aborted", 0, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
