package google

import (
	ai "github.com/spetersoncode/tandem"
	"google.golang.org/genai"
)

// convertTools folds every tool into a single genai.Tool, which is how the
// Gemini API expects function declarations to be grouped.
func convertTools(tools []ai.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
