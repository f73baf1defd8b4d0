package retry

import "time"

// EventType identifies a point in a retry sequence.
type EventType string

const (
	EventAttemptFailed EventType = "attempt_failed"
	EventRetrying      EventType = "retrying"
	EventExhausted     EventType = "exhausted"
)

// Event describes a failed attempt or an upcoming retry.
type Event struct {
	Type EventType
	// Attempt is 1-indexed.
	Attempt     int
	MaxAttempts int
	Error       error
	// Delay is set for EventRetrying.
	Delay     time.Duration
	Retryable bool
}

// Notify receives retry events synchronously.
type Notify func(Event)
