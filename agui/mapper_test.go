package agui

import (
	"errors"
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/hook"
)

func types(evs []events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type()
	}
	return out
}

func TestNewMapper(t *testing.T) {
	t.Run("with provided thread", func(t *testing.T) {
		m := NewMapper("thread-123")
		assert.Equal(t, "thread-123", m.ThreadID())
		assert.NotEmpty(t, m.RunID())
	})

	t.Run("generates thread when empty", func(t *testing.T) {
		assert.NotEmpty(t, NewMapper("").ThreadID())
	})

	t.Run("new run per start", func(t *testing.T) {
		m := NewMapper("thread")
		m.RunStarted()
		first := m.RunID()
		m.RunStarted()
		assert.NotEqual(t, first, m.RunID())
	})
}

func TestMapper_RunLifecycle(t *testing.T) {
	m := NewMapper("thread-1")

	assert.Equal(t, []events.EventType{events.EventTypeRunStarted}, types(m.Map(event.Event{Type: event.RunStart})))
	assert.Equal(t, []events.EventType{events.EventTypeRunFinished}, types(m.Map(event.Event{Type: event.RunEnd})))
	assert.Equal(t, []events.EventType{events.EventTypeRunError}, types(m.Map(event.Event{Type: event.RunError, Error: errors.New("boom")})))
	assert.Equal(t, []events.EventType{events.EventTypeCustom, events.EventTypeRunFinished}, types(m.Map(event.Event{Type: event.RunStopped})))
	assert.Equal(t, []events.EventType{events.EventTypeCustom}, types(m.Map(event.Event{Type: event.Terminated})))
	assert.Equal(t, []events.EventType{events.EventTypeStepStarted}, types(m.Map(event.Event{Type: event.TurnStart, Step: 1})))
	assert.Equal(t, []events.EventType{events.EventTypeStepFinished}, types(m.Map(event.Event{Type: event.TurnEnd, Step: 1})))
	assert.Nil(t, m.Map(event.Event{Type: event.StateChanged}))
}

func TestMapper_Messages(t *testing.T) {
	m := NewMapper("thread-1")

	t.Run("assistant text and tool calls", func(t *testing.T) {
		msg := ai.Message{ID: "msg-1", Role: ai.RoleAssistant, Parts: []ai.ContentPart{
			ai.NewTextPart("Listing files."),
			ai.NewToolCallPart(ai.ToolCall{ID: "call_1", Name: ai.ToolShell, Arguments: `{"cmd":["ls"]}`}),
		}}
		got := types(m.Map(event.Event{Type: event.MessageAdded, Message: &msg}))
		assert.Equal(t, []events.EventType{
			events.EventTypeTextMessageStart,
			events.EventTypeTextMessageContent,
			events.EventTypeTextMessageEnd,
			events.EventTypeToolCallStart,
			events.EventTypeToolCallArgs,
			events.EventTypeToolCallEnd,
		}, got)
	})

	t.Run("user messages are not echoed", func(t *testing.T) {
		msg := ai.NewUserMessage("hi")
		assert.Empty(t, m.Map(event.Event{Type: event.MessageAdded, Message: &msg}))
	})

	t.Run("ui notices are custom events", func(t *testing.T) {
		msg := ai.NewUIMessage("Model call failed")
		got := types(m.Map(event.Event{Type: event.MessageAdded, Message: &msg}))
		assert.Equal(t, []events.EventType{events.EventTypeCustom}, got)
	})

	t.Run("nil message", func(t *testing.T) {
		assert.Nil(t, m.Map(event.Event{Type: event.MessageAdded}))
	})
}

func TestMapper_ToolEvents(t *testing.T) {
	m := NewMapper("thread-1")
	call := &ai.ToolCall{ID: "call_1", Name: ai.ToolShell}
	result := &ai.ToolResult{ToolCallID: "call_1", Content: "a.txt"}

	got := m.Map(event.Event{Type: event.ToolCallResult, ToolCall: call, ToolResult: result})
	assert.Equal(t, []events.EventType{events.EventTypeToolCallResult}, types(got))

	for _, typ := range []event.Type{event.ToolCallApproved, event.ToolCallRejected, event.ToolCallDropped} {
		got := m.Map(event.Event{Type: typ, ToolCall: call, Reason: "why"})
		assert.Equal(t, []events.EventType{events.EventTypeCustom}, types(got), typ)
	}

	assert.Nil(t, m.Map(event.Event{Type: event.ToolCallResult}))
	assert.Nil(t, m.Map(event.Event{Type: event.ToolCallApproved}))
	assert.Nil(t, m.Map(event.Event{Type: event.ToolCallStart, ToolCall: call}))
}

func TestMapper_Snapshots(t *testing.T) {
	m := NewMapper("thread-1")
	state := hook.State{Messages: []ai.Message{ai.NewUserMessage("hi")}, ApprovalPolicy: ai.PolicySuggest}

	assert.Equal(t, events.EventTypeStateSnapshot, m.StateSnapshot(state).Type())
	assert.Equal(t, events.EventTypeMessagesSnapshot, m.MessagesSnapshot(state.Messages).Type())

	data, err := m.StateSnapshot(state).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"approvalPolicy":"suggest"`)
}
