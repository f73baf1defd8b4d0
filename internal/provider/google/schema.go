package google

import (
	"encoding/json"

	"google.golang.org/genai"
)

// jsonSchema is the subset of JSON Schema that genai.Schema can carry.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Enum        []any                  `json:"enum"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
}

var schemaTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// toSchema converts a tool's parameter schema. Keywords genai has no field
// for are dropped; undecodable input yields nil.
func toSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var js jsonSchema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil
	}
	return js.genai()
}

func (js *jsonSchema) genai() *genai.Schema {
	if js == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[js.Type],
		Description: js.Description,
		Required:    js.Required,
		Items:       js.Items.genai(),
	}
	for _, e := range js.Enum {
		if s, ok := e.(string); ok {
			out.Enum = append(out.Enum, s)
		}
	}
	if len(js.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(js.Properties))
		for name, prop := range js.Properties {
			out.Properties[name] = prop.genai()
		}
	}
	return out
}
