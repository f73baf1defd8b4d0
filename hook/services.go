package hook

import (
	"context"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/prompt"
	"github.com/spetersoncode/tandem/safety"
)

// Tools exposes tool execution to the host.
type Tools struct {
	b *Bridge
}

// Tools returns the tool API.
func (b *Bridge) Tools() Tools {
	return Tools{b: b}
}

// Execute runs call through the installed tool runner.
func (t Tools) Execute(ctx context.Context, call ai.ToolCall) ai.ToolResult {
	t.b.runnerMu.RLock()
	run := t.b.runner
	t.b.runnerMu.RUnlock()
	if run == nil {
		return ai.NewErrorResult(call, "no tool runner installed")
	}
	return run(ctx, call)
}

// Prompts returns the confirmation/selection/input collaborator.
func (b *Bridge) Prompts() prompt.Prompter {
	return b.prompter
}

// Approval exposes the approval policy.
type Approval struct {
	b *Bridge
}

// Approval returns the approval API.
func (b *Bridge) Approval() Approval {
	return Approval{b: b}
}

// GetPolicy returns the current approval policy.
func (a Approval) GetPolicy() ai.ApprovalPolicy {
	a.b.mu.RLock()
	defer a.b.mu.RUnlock()
	return a.b.state.ApprovalPolicy
}

// SetPolicy changes the approval policy.
func (a Approval) SetPolicy(p ai.ApprovalPolicy) error {
	return a.b.Actions().SetApprovalPolicy(p)
}

// WritableRoots returns the configured writable roots.
func (a Approval) WritableRoots() []string {
	return append([]string(nil), a.b.writableRoots...)
}

// ExemptCommands returns the configured exemption patterns.
func (a Approval) ExemptCommands() []string {
	return append([]string(nil), a.b.exemptCommands...)
}

// CanAutoApprove reports whether cmd would run without confirmation under
// the current policy.
func (a Approval) CanAutoApprove(cmd []string) bool {
	assessment := a.b.classifier.ClassifyCommand(cmd, a.b.workdir, a.GetPolicy(), a.b.writableRoots, a.b.exemptCommands)
	return assessment.Kind == ai.AssessAutoApprove
}

// Classifier returns the safety classifier.
func (a Approval) Classifier() safety.Classifier {
	return a.b.classifier
}
