package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/tandem"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToMessages converts AG-UI messages to transcript messages.
func ToMessages(msgs []events.Message) []ai.Message {
	result := make([]ai.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, ToMessage(msg))
	}
	return result
}

// ToMessage converts a single AG-UI message. The AG-UI ID is kept so the
// transcript de-duplicates messages a frontend sends again.
func ToMessage(msg events.Message) ai.Message {
	m := ai.Message{
		ID:   msg.ID,
		Role: toRole(msg.Role),
	}

	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}

	if m.Role == ai.RoleTool && msg.ToolCallID != nil {
		return ai.NewToolResultMessage(ai.ToolResult{ToolCallID: *msg.ToolCallID, Content: content})
	}

	if len(msg.ToolCalls) == 0 {
		m.Content = content
		return m
	}
	if content != "" {
		m.Parts = append(m.Parts, ai.NewTextPart(content))
	}
	for _, tc := range msg.ToolCalls {
		m.Parts = append(m.Parts, ai.NewToolCallPart(ai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}))
	}
	return m
}

// FromMessages converts a transcript to AG-UI messages. UI notices are
// left out. A tool message carrying several results becomes one AG-UI
// message per result.
func FromMessages(msgs []ai.Message) []events.Message {
	result := make([]events.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, FromMessage(msg)...)
	}
	return result
}

// FromMessage converts a single transcript message.
func FromMessage(msg ai.Message) []events.Message {
	id := msg.ID
	if id == "" {
		id = events.GenerateMessageID()
	}

	switch msg.Role {
	case ai.RoleUI:
		return nil
	case ai.RoleTool:
		results := msg.ToolResults()
		out := make([]events.Message, len(results))
		for i, r := range results {
			callID, content := r.ToolCallID, r.Content
			out[i] = events.Message{
				ID:         id,
				Role:       RoleTool,
				Content:    &content,
				ToolCallID: &callID,
			}
			if i > 0 {
				out[i].ID = events.GenerateMessageID()
			}
		}
		return out
	}

	m := events.Message{ID: id, Role: fromRole(msg.Role)}
	if text := msg.Text(); text != "" {
		m.Content = &text
	}
	if calls := msg.ToolCalls(); len(calls) > 0 {
		m.ToolCalls = make([]events.ToolCall, len(calls))
		for i, tc := range calls {
			m.ToolCalls[i] = events.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: events.Function{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			}
		}
	}
	return []events.Message{m}
}

func toRole(role string) ai.Role {
	switch role {
	case RoleAssistant:
		return ai.RoleAssistant
	case RoleSystem:
		return ai.RoleSystem
	case RoleTool:
		return ai.RoleTool
	default:
		return ai.RoleUser
	}
}

func fromRole(role ai.Role) string {
	switch role {
	case ai.RoleAssistant:
		return RoleAssistant
	case ai.RoleSystem:
		return RoleSystem
	case ai.RoleTool:
		return RoleTool
	default:
		return RoleUser
	}
}
