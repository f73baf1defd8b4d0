package workflow

import (
	"github.com/google/uuid"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/hook"
)

// Factory builds a workflow for a host bridge.
type Factory func(bridge *hook.Bridge) (*Workflow, error)

// NewFactory returns a Factory that builds workflows from deps. Each
// workflow gets its own session ID and, unless deps.Manager is set, its own
// tool provider manager.
func NewFactory(deps Deps, opts ...Option) Factory {
	return func(bridge *hook.Bridge) (*Workflow, error) {
		d := deps
		if d.Session != nil {
			s := *d.Session
			s.ID = uuid.NewString()
			d.Session = &s
		}
		return New(d, bridge, opts...)
	}
}

// DisplayConfig is what a host shows about a workflow.
type DisplayConfig struct {
	Title          string
	Model          string
	ApprovalPolicy string
}

// DisplayConfig returns the current display configuration.
func (w *Workflow) DisplayConfig() DisplayConfig {
	return DisplayConfig{
		Title:          w.opts.Title,
		Model:          w.deps.Session.Model,
		ApprovalPolicy: PolicyLabel(w.bridge.Approval().GetPolicy()),
	}
}

// PolicyLabel returns the human-readable name of p.
func PolicyLabel(p ai.ApprovalPolicy) string {
	switch p {
	case ai.PolicySuggest:
		return "Suggest"
	case ai.PolicyAutoEdit:
		return "Auto Edit"
	case ai.PolicyFullAuto:
		return "Full Auto"
	}
	return string(p)
}
