package tandem

import (
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	// RoleUI marks host-facing notices (errors, command output). UI messages
	// are kept in the transcript but never sent to the model.
	RoleUI Role = "ui"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool, RoleUI:
		return true
	}
	return false
}

// ContentPartType represents the type of a message content part.
type ContentPartType string

const (
	ContentPartTypeText       ContentPartType = "text"
	ContentPartTypeToolCall   ContentPartType = "tool_call"
	ContentPartTypeToolResult ContentPartType = "tool_result"
	ContentPartTypeReasoning  ContentPartType = "reasoning"
)

// ContentPart represents a single typed part of a message.
// Exactly one payload field is populated, matching Type.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	// Text holds the text for text and reasoning parts.
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"toolCall,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeText, Text: text}
}

// NewReasoningPart creates a reasoning content part.
func NewReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeReasoning, Text: text}
}

// NewToolCallPart creates a tool call content part.
func NewToolCallPart(call ToolCall) ContentPart {
	return ContentPart{Type: ContentPartTypeToolCall, ToolCall: &call}
}

// NewToolResultPart creates a tool result content part.
func NewToolResultPart(result ToolResult) ContentPart {
	return ContentPart{Type: ContentPartTypeToolResult, ToolResult: &result}
}

// Message represents a single message in a conversation.
// Content is used for plain text messages; Parts for anything structured.
// When Parts is populated, Content is ignored.
type Message struct {
	// ID is assigned once when the message first enters a transcript and is
	// used for de-duplication and UI diffing.
	ID      string        `json:"id,omitempty"`
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	return "msg-" + uuid.New().String()
}

// NewUserMessage creates a plain text user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewAssistantMessage creates a plain text assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// NewUIMessage creates a host-only notice.
func NewUIMessage(text string) Message {
	return Message{Role: RoleUI, Content: text}
}

// NewToolResultMessage creates a tool message carrying the given results.
func NewToolResultMessage(results ...ToolResult) Message {
	parts := make([]ContentPart, len(results))
	for i, r := range results {
		parts[i] = NewToolResultPart(r)
	}
	return Message{Role: RoleTool, Parts: parts}
}

// HasParts returns true if the message has structured content parts.
func (m Message) HasParts() bool {
	return len(m.Parts) > 0
}

// Text returns the concatenated text of the message, ignoring reasoning,
// tool calls and tool results.
func (m Message) Text() string {
	if !m.HasParts() {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartTypeText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Reasoning returns the concatenated reasoning text of the message.
func (m Message) Reasoning() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartTypeReasoning {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool calls carried by the message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Type == ContentPartTypeToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// ToolResults returns the tool results carried by the message, in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if p.Type == ContentPartTypeToolResult && p.ToolResult != nil {
			results = append(results, *p.ToolResult)
		}
	}
	return results
}

// Clone returns a copy of the message that shares no mutable state with m.
func (m Message) Clone() Message {
	if m.Parts == nil {
		return m
	}
	parts := make([]ContentPart, len(m.Parts))
	for i, p := range m.Parts {
		if p.ToolCall != nil {
			tc := *p.ToolCall
			p.ToolCall = &tc
		}
		if p.ToolResult != nil {
			tr := *p.ToolResult
			p.ToolResult = &tr
		}
		parts[i] = p
	}
	m.Parts = parts
	return m
}

// FinishReason is the normalized reason a model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
	FinishUnknown       FinishReason = "unknown"
)

// Complete reports whether the reason indicates the model finished its turn.
func (f FinishReason) Complete() bool {
	return f == FinishStop
}

// Response represents a complete response from a chat provider.
type Response struct {
	// Message is the assistant message produced by the model. Its parts carry
	// text, reasoning and any tool calls in emission order.
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finishReason,omitempty"`
	Usage        Usage        `json:"usage"`
}

// ToolCalls returns the tool calls requested by the response.
func (r *Response) ToolCalls() []ToolCall {
	return r.Message.ToolCalls()
}

// Usage contains token usage information for a request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}
