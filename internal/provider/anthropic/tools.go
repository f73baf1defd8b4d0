package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	ai "github.com/spetersoncode/tandem"
)

// inputSchema is the subset of a JSON Schema object the Messages API takes
// as a tool's input_schema.
type inputSchema struct {
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

func convertTools(tools []ai.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var in inputSchema
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &in)
		}
		param := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Required: in.Required},
		}
		if in.Properties != nil {
			param.InputSchema.Properties = in.Properties
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}
