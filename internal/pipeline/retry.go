package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/chaz8081/gostt-live/internal/transcribe"
)

// RetryPolicy bounds how often a failed backend call is repeated. The zero
// value and MaxAttempts of 1 both mean a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Do runs op until it succeeds or the attempts are used up. Permanent
// errors and a done ctx end it early. onRetry, if set, is called before each retry.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			t := time.NewTimer(p.backoffDelay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			case <-t.C:
			}
		}

		err = op(ctx)
		if err == nil || permanent(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// backoffDelay returns the delay before retry n (0-based), doubling from
// BaseDelay and capped at MaxDelay.
func (p RetryPolicy) backoffDelay(n int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << uint(min(n, 30))
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		return p.MaxDelay
	}
	return delay
}

// permanent reports errors that repeating the call cannot fix.
func permanent(err error) bool {
	var pe *panicError
	return errors.Is(err, transcribe.ErrEmptyAudio) || errors.As(err, &pe)
}
