package hook

import (
	"maps"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/internal/store"
)

// Task is one entry of the host-visible task list.
type Task struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// State is the canonical snapshot of a workflow, as seen by the host.
// Invariant: Loading is true iff a turn loop is running.
type State struct {
	Loading        bool              `json:"loading"`
	Messages       []ai.Message      `json:"messages"`
	InputDisabled  bool              `json:"inputDisabled"`
	Queue          []string          `json:"queue"`
	TaskList       []Task            `json:"taskList"`
	ApprovalPolicy ai.ApprovalPolicy `json:"approvalPolicy"`
	Agent          string            `json:"agent,omitempty"`
	Slots          map[string]any    `json:"slots,omitempty"`
}

// Clone returns a copy that shares no collections with s.
func (s State) Clone() State {
	s.Messages = store.Copy(s.Messages)
	if s.Queue != nil {
		s.Queue = append([]string(nil), s.Queue...)
	}
	if s.TaskList != nil {
		s.TaskList = append([]Task(nil), s.TaskList...)
	}
	if s.Slots != nil {
		s.Slots = maps.Clone(s.Slots)
	}
	return s
}

// Updater is a state mutation accepted by SetState.
type Updater interface {
	apply(prev State) State
}

// Partial is the object form of a state update: a shallow top-level merge.
// A nil field leaves the current value alone; a non-nil field replaces it
// wholesale. Collections are never merged, so
//
//	bridge.SetState(hook.Partial{Messages: hook.Ptr([]ai.Message{})})
//
// empties the transcript.
type Partial struct {
	Loading        *bool
	Messages       *[]ai.Message
	InputDisabled  *bool
	Queue          *[]string
	TaskList       *[]Task
	ApprovalPolicy *ai.ApprovalPolicy
	Agent          *string
	Slots          *map[string]any
}

func (p Partial) apply(s State) State {
	if p.Loading != nil {
		s.Loading = *p.Loading
	}
	if p.Messages != nil {
		s.Messages = store.Copy(*p.Messages)
		if s.Messages == nil {
			s.Messages = []ai.Message{}
		}
	}
	if p.InputDisabled != nil {
		s.InputDisabled = *p.InputDisabled
	}
	if p.Queue != nil {
		s.Queue = append([]string{}, *p.Queue...)
	}
	if p.TaskList != nil {
		s.TaskList = append([]Task{}, *p.TaskList...)
	}
	if p.ApprovalPolicy != nil {
		s.ApprovalPolicy = *p.ApprovalPolicy
	}
	if p.Agent != nil {
		s.Agent = *p.Agent
	}
	if p.Slots != nil {
		s.Slots = maps.Clone(*p.Slots)
		if s.Slots == nil {
			s.Slots = map[string]any{}
		}
	}
	return s
}

// UpdateFunc is the function form of a state update. It receives a copy of
// the previous state and returns the next state wholesale.
type UpdateFunc func(prev State) State

func (f UpdateFunc) apply(s State) State {
	return f(s)
}

// Ptr returns a pointer to v, for building a Partial.
func Ptr[T any](v T) *T {
	return &v
}
