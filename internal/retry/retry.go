package retry

import (
	"context"
	"time"
)

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. Backoff waits end early when ctx is done, returning the
// context's cause. notify may be nil.
func Do[T any](ctx context.Context, cfg Config, notify Notify, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return zero, context.Cause(ctx)
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		retryable := IsTransient(err) && ctx.Err() == nil
		send(notify, Event{
			Type:        EventAttemptFailed,
			Attempt:     attempt + 1,
			MaxAttempts: attempts,
			Error:       err,
			Retryable:   retryable,
		})
		if !retryable {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := delayFor(cfg.Delay(attempt), err)
		send(notify, Event{
			Type:        EventRetrying,
			Attempt:     attempt + 1,
			MaxAttempts: attempts,
			Delay:       delay,
			Retryable:   true,
		})
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, context.Cause(ctx)
		case <-timer.C:
		}
	}

	send(notify, Event{
		Type:        EventExhausted,
		Attempt:     attempts,
		MaxAttempts: attempts,
		Error:       lastErr,
	})
	return zero, lastErr
}

func send(notify Notify, e Event) {
	if notify != nil {
		notify(e)
	}
}
