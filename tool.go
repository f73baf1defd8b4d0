package tandem

import (
	"encoding/json"
	"fmt"

	"github.com/spetersoncode/tandem/internal/schema"
)

// Names of the natively sandboxed tools and the in-process selection tool.
const (
	ToolShell      = "shell"
	ToolApplyPatch = "apply_patch"
	ToolUserSelect = "user_select"
)

// Tool defines a function that can be called by the model.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string
	// Description explains what the tool does (helps the model decide when to use it).
	Description string
	// Parameters is a JSON Schema object defining the function parameters.
	Parameters json.RawMessage
}

// ToolCall represents a request from the model to invoke a tool.
type ToolCall struct {
	// ID is unique within a turn and is used to match results.
	ID string `json:"id"`
	// Name is the name of the tool to invoke.
	Name string `json:"name"`
	// Arguments is a JSON string containing the arguments to pass.
	// It is opaque to the engine.
	Arguments string `json:"arguments"`
}

// ToolResult represents the result of executing a tool call.
type ToolResult struct {
	// ToolCallID matches the ID from the corresponding ToolCall.
	ToolCallID string `json:"toolCallId"`
	// Name is the name of the tool that produced the result.
	Name string `json:"name,omitempty"`
	// Content is the result content to return to the model.
	Content string `json:"content"`
	// IsError indicates if the result represents a failure.
	IsError bool `json:"isError,omitempty"`
}

// NewErrorResult creates a failure result for call.
func NewErrorResult(call ToolCall, format string, args ...any) ToolResult {
	return ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    fmt.Sprintf(format, args...),
		IsError:    true,
	}
}

// ShellArgs are the arguments of the native shell tool.
type ShellArgs struct {
	Cmd     []string `json:"cmd"`
	Command []string `json:"command,omitempty"`
	Workdir string   `json:"workdir,omitempty"`
	// Timeout is in milliseconds.
	Timeout int `json:"timeout,omitempty"`
}

// Argv returns the command vector, accepting either key.
func (a ShellArgs) Argv() []string {
	if len(a.Cmd) > 0 {
		return a.Cmd
	}
	return a.Command
}

// ParseShellArgs decodes and validates shell tool arguments.
func ParseShellArgs(raw string) (ShellArgs, error) {
	var args ShellArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return ShellArgs{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	argv := args.Argv()
	if len(argv) == 0 || argv[0] == "" {
		return ShellArgs{}, fmt.Errorf("%w: cmd must be a non-empty array", ErrInvalidArguments)
	}
	if args.Timeout < 0 {
		return ShellArgs{}, fmt.Errorf("%w: timeout must not be negative", ErrInvalidArguments)
	}
	return args, nil
}

// SelectArgs are the arguments of the user_select tool.
type SelectArgs struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Default  string   `json:"default,omitempty"`
}

// ParseSelectArgs decodes and validates user_select arguments.
func ParseSelectArgs(raw string) (SelectArgs, error) {
	var args SelectArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return SelectArgs{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args.Question == "" {
		return SelectArgs{}, fmt.Errorf("%w: question is required", ErrInvalidArguments)
	}
	if len(args.Options) == 0 {
		return SelectArgs{}, fmt.Errorf("%w: options must not be empty", ErrInvalidArguments)
	}
	return args, nil
}

// NativeTools returns the definitions of the built-in tools offered to the model.
func NativeTools() []Tool {
	return []Tool{
		{
			Name:        ToolShell,
			Description: "Run a shell command in the workspace. The command is an argv array; it runs only after passing the approval policy.",
			Parameters: schema.Object().
				Field("cmd", schema.Array(schema.String()).MinItems(1).Desc("Command and arguments").Required()).
				Field("workdir", schema.String().Desc("Working directory")).
				Field("timeout", schema.Int().Min(1).Desc("Timeout in milliseconds")).
				MustBuild(),
		},
		{
			Name:        ToolApplyPatch,
			Description: "Create, replace or delete files in the workspace. Each file entry carries the full new content.",
			Parameters: schema.Object().
				Field("files", schema.Array(schema.Object().
					Field("path", schema.String().Required()).
					Field("op", schema.String().Enum(string(PatchAdd), string(PatchUpdate), string(PatchDelete)).Required()).
					Field("content", schema.String())).
					MinItems(1).Required()).
				MustBuild(),
		},
		{
			Name:        ToolUserSelect,
			Description: "Ask the user to pick one of several options and return the choice.",
			Parameters: schema.Object().
				Field("question", schema.String().Required()).
				Field("options", schema.Array(schema.String()).MinItems(1).Required()).
				Field("default", schema.String()).
				MustBuild(),
		},
	}
}
