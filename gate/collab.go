package gate

import (
	"context"

	ai "github.com/spetersoncode/tandem"
)

// ExecInput describes one sandboxed command run.
type ExecInput struct {
	Command []string
	Workdir string
	// TimeoutMillis bounds the run; zero means the executor default.
	TimeoutMillis int
	// Sandbox asks the executor to isolate the process.
	Sandbox bool
}

// ExecMetadata carries what the executor knows about a finished run.
type ExecMetadata struct {
	// ExitCode is nil when the process never produced one.
	ExitCode        *int
	DurationSeconds float64
}

// ExecResult is the output of a command run.
type ExecResult struct {
	Output   string
	Metadata ExecMetadata
}

// Executor runs approved shell commands. It must stop the process when ctx
// is cancelled.
type Executor interface {
	Exec(ctx context.Context, in ExecInput) (ExecResult, error)
}

// PatchApplier applies approved patches and returns a short summary.
type PatchApplier interface {
	Apply(ctx context.Context, patch *ai.Patch, workdir string, sandbox bool) (string, error)
}

// Explainer produces a human-readable explanation of a pending command.
type Explainer interface {
	Explain(ctx context.Context, req ai.ConfirmRequest) (string, error)
}

// ExplainerFunc adapts a function to Explainer.
type ExplainerFunc func(ctx context.Context, req ai.ConfirmRequest) (string, error)

func (f ExplainerFunc) Explain(ctx context.Context, req ai.ConfirmRequest) (string, error) {
	return f(ctx, req)
}

// ToolProvider executes tools that are not handled natively. The
// mcp.Manager satisfies it.
type ToolProvider interface {
	CallTool(ctx context.Context, call ai.ToolCall) (ai.ToolResult, error)
}

// Selector presents a choice to the user. prompt.Prompter satisfies it.
type Selector interface {
	Select(ctx context.Context, question string, options []string, defaultOption string) (string, error)
}

// IntPtr returns a pointer to v, for building ExecMetadata.
func IntPtr(v int) *int {
	return &v
}
