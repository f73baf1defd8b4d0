// Package event defines the workflow lifecycle notifications delivered to
// hosts through the hook bridge. Events are delivered in emission order,
// synchronously with the state commit that produced them. The event types
// map 1:1 onto the AG-UI protocol (see package agui).
package event

import (
	"time"

	ai "github.com/spetersoncode/tandem"
)

// Type identifies the kind of event.
type Type string

// Run lifecycle events. A run is one turn loop, from Idle to Idle.
const (
	// RunStart fires when a turn loop begins.
	RunStart Type = "run_start"

	// RunEnd fires when a turn loop returns to Idle without error.
	// Message holds the reason (complete, max_turns, halted).
	RunEnd Type = "run_end"

	// RunError fires when a model call fails and the loop halts.
	RunError Type = "run_error"

	// RunStopped fires when stop() invalidates the running loop.
	RunStopped Type = "run_stopped"

	// Terminated fires once when the workflow is terminated.
	Terminated Type = "terminated"
)

// Turn lifecycle events
const (
	// TurnStart fires before each model call. Step is the 1-indexed turn.
	TurnStart Type = "turn_start"

	// TurnEnd fires after the turn's tool calls have been dispatched.
	TurnEnd Type = "turn_end"
)

// Message events
const (
	// MessageAdded fires for every message committed to the transcript.
	MessageAdded Type = "message_added"
)

// Tool call lifecycle events
const (
	// ToolCallStart fires when a call is handed to the execution gate.
	ToolCallStart Type = "tool_call_start"

	// ToolCallApproved fires when a call is approved, automatically or by the user.
	ToolCallApproved Type = "tool_call_approved"

	// ToolCallRejected fires when a call is denied.
	ToolCallRejected Type = "tool_call_rejected"

	// ToolCallResult fires when a result is committed.
	ToolCallResult Type = "tool_call_result"

	// ToolCallDropped fires when a call's result was discarded by cancellation.
	ToolCallDropped Type = "tool_call_dropped"
)

// State events
const (
	// StateChanged fires after every setState commit.
	StateChanged Type = "state_changed"
)

// Event represents an observable occurrence in a workflow.
type Event struct {
	// Type identifies the kind of event.
	Type Type

	// Generation is the workflow generation the event belongs to.
	Generation uint64

	// Step is the current turn number (1-indexed) for turn events.
	Step int

	// Message is the committed message for MessageAdded events.
	Message *ai.Message

	// ToolCall contains the tool call for tool-related events.
	ToolCall *ai.ToolCall

	// ToolResult contains the result for ToolCallResult events.
	ToolResult *ai.ToolResult

	// Error contains the error for RunError events.
	Error error

	// Reason carries additional context (termination reason, deny message).
	Reason string

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Observer receives events. Observers run synchronously on the emitting
// goroutine and must not call back into the workflow or bridge.
type Observer func(Event)

// Emit sends an event with timestamp to the channel (non-blocking).
func Emit(ch chan<- Event, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
		// Channel full - don't block
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() chan Event {
	return make(chan Event, 100)
}

// ToChannel returns an observer that forwards events to ch without blocking.
// Events are dropped when ch is full.
func ToChannel(ch chan<- Event) Observer {
	return func(e Event) {
		Emit(ch, e)
	}
}
