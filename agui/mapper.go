package agui

import (
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/hook"
)

// Names of the CUSTOM events emitted for workflow events with no AG-UI
// equivalent.
const (
	CustomToolApproved = "tool_call_approved"
	CustomToolRejected = "tool_call_rejected"
	CustomToolDropped  = "tool_call_dropped"
	CustomNotice       = "notice"
	CustomStopped      = "run_stopped"
	CustomTerminated   = "terminated"
	CustomPrompt       = "prompt_request"
)

// Mapper converts workflow events to AG-UI events. A new run ID is
// generated on every RunStart.
type Mapper struct {
	threadID string
	runID    string
}

// NewMapper creates a Mapper for one thread, typically one session.
func NewMapper(threadID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	return &Mapper{
		threadID: threadID,
		runID:    events.GenerateRunID(),
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the ID of the current run.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted starts a new run and returns its RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	m.runID = events.GenerateRunID()
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event for the current run.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(err error) events.Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return events.NewRunErrorEvent(msg)
}

// StateSnapshot returns a STATE_SNAPSHOT event for s.
func (m *Mapper) StateSnapshot(s hook.State) events.Event {
	return events.NewStateSnapshotEvent(s)
}

// MessagesSnapshot returns a MESSAGES_SNAPSHOT event for a transcript.
func (m *Mapper) MessagesSnapshot(msgs []ai.Message) events.Event {
	return events.NewMessagesSnapshotEvent(FromMessages(msgs))
}

// Map converts one workflow event. Assistant messages expand into the
// AG-UI start/content/end sequences for their text and each tool call.
// It returns nil for events with nothing to report.
func (m *Mapper) Map(e event.Event) []events.Event {
	switch e.Type {
	case event.RunStart:
		return []events.Event{m.RunStarted()}
	case event.RunEnd:
		return []events.Event{m.RunFinished()}
	case event.RunError:
		return []events.Event{m.RunError(e.Error)}
	case event.RunStopped:
		return []events.Event{custom(CustomStopped, map[string]any{"generation": e.Generation}), m.RunFinished()}
	case event.Terminated:
		return []events.Event{custom(CustomTerminated, nil)}

	case event.TurnStart:
		return []events.Event{events.NewStepStartedEvent(stepName(e.Step))}
	case event.TurnEnd:
		return []events.Event{events.NewStepFinishedEvent(stepName(e.Step))}

	case event.MessageAdded:
		if e.Message == nil {
			return nil
		}
		return m.mapMessage(*e.Message)

	case event.ToolCallResult:
		if e.ToolCall == nil || e.ToolResult == nil {
			return nil
		}
		return []events.Event{events.NewToolCallResultEvent(events.GenerateMessageID(), e.ToolCall.ID, e.ToolResult.Content)}
	case event.ToolCallApproved:
		return toolCustom(CustomToolApproved, e)
	case event.ToolCallRejected:
		return toolCustom(CustomToolRejected, e)
	case event.ToolCallDropped:
		return toolCustom(CustomToolDropped, e)
	}
	// StateChanged carries no payload and ToolCallStart is covered by the
	// assistant message that requested the call.
	return nil
}

func (m *Mapper) mapMessage(msg ai.Message) []events.Event {
	if msg.Role == ai.RoleUI {
		return []events.Event{custom(CustomNotice, map[string]any{"messageId": msg.ID, "text": msg.Text()})}
	}
	if msg.Role != ai.RoleAssistant {
		return nil
	}

	var out []events.Event
	if text := msg.Text(); text != "" {
		id := msg.ID
		if id == "" {
			id = events.GenerateMessageID()
		}
		out = append(out,
			events.NewTextMessageStartEvent(id, events.WithRole(RoleAssistant)),
			events.NewTextMessageContentEvent(id, text),
			events.NewTextMessageEndEvent(id),
		)
	}
	for _, call := range msg.ToolCalls() {
		out = append(out,
			events.NewToolCallStartEvent(call.ID, call.Name),
			events.NewToolCallArgsEvent(call.ID, call.Arguments),
			events.NewToolCallEndEvent(call.ID),
		)
	}
	return out
}

func toolCustom(name string, e event.Event) []events.Event {
	if e.ToolCall == nil {
		return nil
	}
	value := map[string]any{"toolCallId": e.ToolCall.ID, "toolName": e.ToolCall.Name}
	if e.Reason != "" {
		value["reason"] = e.Reason
	}
	return []events.Event{custom(name, value)}
}

func custom(name string, value any) events.Event {
	if value == nil {
		return events.NewCustomEvent(name)
	}
	return events.NewCustomEvent(name, events.WithValue(value))
}

func stepName(step int) string {
	return fmt.Sprintf("turn-%d", step)
}
