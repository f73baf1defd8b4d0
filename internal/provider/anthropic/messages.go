package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	ai "github.com/spetersoncode/tandem"
)

func convertMessages(messages []ai.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var result []anthropic.MessageParam
	var system []anthropic.TextBlockParam
	prevTool := false

	for _, msg := range messages {
		isTool := msg.Role == ai.RoleTool
		switch msg.Role {
		case ai.RoleSystem:
			// The API rejects empty text blocks.
			if text := msg.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case ai.RoleUser:
			if text := msg.Text(); text != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case ai.RoleAssistant:
			if blocks := assistantBlocks(msg); len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}
		case ai.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults() {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) == 0 {
				break
			}
			if prevTool && len(result) > 0 {
				last := &result[len(result)-1]
				last.Content = append(last.Content, blocks...)
			} else {
				result = append(result, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleUser,
					Content: blocks,
				})
			}
		}
		prevTool = isTool
	}

	return result, system
}

func assistantBlocks(msg ai.Message) []anthropic.ContentBlockParamUnion {
	if !msg.HasParts() {
		if msg.Content == "" {
			return nil
		}
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch part.Type {
		case ai.ContentPartTypeText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case ai.ContentPartTypeToolCall:
			tc := part.ToolCall
			var input any = map[string]any{}
			if tc.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = map[string]any{}
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
	}
	return blocks
}
