package workflow

import (
	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/gate"
	"github.com/spetersoncode/tandem/internal/metrics"
	"github.com/spetersoncode/tandem/mcp"
	"github.com/spetersoncode/tandem/model"
	"github.com/spetersoncode/tandem/safety"
)

// DefaultMaxTurns bounds one turn loop.
const DefaultMaxTurns = 30

// DefaultSystemPrompt is sent ahead of the user instructions on every turn.
const DefaultSystemPrompt = `You are a coding agent working in the user's terminal.
You can run shell commands with the shell tool and edit files with the apply_patch tool.
Every command and patch is checked against the user's approval policy and may be rejected.
When a tool call is rejected, do not retry the same call; ask the user how to proceed.
Use user_select when you need the user to choose between options.
Keep answers short and finish with a summary of what you changed.`

// Deps are the collaborators a Workflow is built from.
type Deps struct {
	// Session is the per-workflow context. Required.
	Session *ai.Session
	// Caller calls the model. Required.
	Caller model.Caller
	// Executor runs approved shell commands.
	Executor gate.Executor
	// Patcher applies approved patches.
	Patcher gate.PatchApplier
	// Classifier overrides the bridge's safety classifier.
	Classifier safety.Classifier
	// Manager routes external tool calls. When nil the workflow creates
	// one and connects it to MCPServers during Initialize.
	Manager    *mcp.Manager
	MCPServers []mcp.ServerConfig
	Metrics    *metrics.Metrics
}

// Options contains configuration for a Workflow.
type Options struct {
	// MaxTurns bounds the model calls of one turn loop.
	MaxTurns int

	// SystemPrompt replaces DefaultSystemPrompt.
	SystemPrompt string

	// Instructions are user instructions appended after the system prompt,
	// e.g. the contents of a project AGENTS.md.
	Instructions string

	// Title is shown by hosts in their header.
	Title string

	// MaxExplains bounds explanation rounds per tool call.
	MaxExplains int

	// Explain asks the model to explain pending commands on request.
	Explain bool
}

// Option is a functional option for workflow configuration.
type Option func(*Options)

// WithMaxTurns sets the turn bound. Values below one are ignored.
func WithMaxTurns(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTurns = n
		}
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithInstructions sets the user instructions.
func WithInstructions(text string) Option {
	return func(o *Options) {
		o.Instructions = text
	}
}

// WithTitle sets the display title.
func WithTitle(title string) Option {
	return func(o *Options) {
		o.Title = title
	}
}

// WithMaxExplains bounds explanation rounds per tool call.
func WithMaxExplains(n int) Option {
	return func(o *Options) {
		o.MaxExplains = n
	}
}

// WithModelExplanations toggles model-written explanations.
func WithModelExplanations(enabled bool) Option {
	return func(o *Options) {
		o.Explain = enabled
	}
}

// ApplyOptions applies option functions over the defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		MaxTurns:     DefaultMaxTurns,
		SystemPrompt: DefaultSystemPrompt,
		Title:        "tandem",
		MaxExplains:  gate.DefaultMaxExplains,
		Explain:      true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
