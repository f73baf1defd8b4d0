package google

import (
	"encoding/json"
	"fmt"
	"strings"

	ai "github.com/spetersoncode/tandem"
	"google.golang.org/genai"
)

// Content roles accepted by the Gemini API.
const (
	roleUser  = "user"
	roleModel = "model"
)

// convertMessages splits system text from the conversation contents.
func convertMessages(messages []ai.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		var role string
		var parts []*genai.Part

		switch msg.Role {
		case ai.RoleSystem:
			if text := msg.Text(); text != "" {
				system = append(system, text)
			}
			continue
		case ai.RoleUser:
			role = roleUser
			if text := msg.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
		case ai.RoleAssistant:
			role = roleModel
			if text := msg.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, tc := range msg.ToolCalls() {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
		case ai.RoleTool:
			role = roleUser
			for _, tr := range msg.ToolResults() {
				key := "output"
				if tr.IsError {
					key = "error"
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       tr.ToolCallID,
					Name:     tr.Name,
					Response: map[string]any{key: tr.Content},
				}})
			}
		default:
			continue
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

// convertResponse maps a candidate's parts to an assistant message.
func convertResponse(content *genai.Content) ai.Message {
	msg := ai.Message{Role: ai.RoleAssistant}
	if content == nil {
		return msg
	}
	for i, part := range content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, _ := json.Marshal(part.FunctionCall.Args)
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, part.FunctionCall.Name)
			}
			msg.Parts = append(msg.Parts, ai.NewToolCallPart(ai.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			}))
		case part.Thought && part.Text != "":
			msg.Parts = append(msg.Parts, ai.NewReasoningPart(part.Text))
		case part.Text != "":
			msg.Parts = append(msg.Parts, ai.NewTextPart(part.Text))
		}
	}
	return msg
}
