package hook

import (
	"fmt"
	"maps"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/internal/store"
)

// Actions is the host-facing action API. Every action is a SetState call.
type Actions struct {
	b *Bridge
}

// Actions returns the action API.
func (b *Bridge) Actions() Actions {
	return Actions{b: b}
}

// AddMessage appends messages to the transcript, assigning IDs and skipping
// messages already present. It emits MessageAdded for each new message.
func (a Actions) AddMessage(msgs ...ai.Message) {
	a.b.Update(func(s State) (State, []event.Event) {
		before := len(s.Messages)
		s.Messages = store.Append(s.Messages, msgs...)
		return s, MessageEvents(store.Copy(s.Messages[before:]))
	})
}

// MessageEvents builds one MessageAdded event per message.
func MessageEvents(msgs []ai.Message) []event.Event {
	events := make([]event.Event, len(msgs))
	for i := range msgs {
		events[i] = event.Event{Type: event.MessageAdded, Message: &msgs[i]}
	}
	return events
}

// Say appends an assistant text message.
func (a Actions) Say(text string) {
	a.AddMessage(ai.NewAssistantMessage(text))
}

// Notify appends a host-only UI message.
func (a Actions) Notify(format string, args ...any) {
	a.AddMessage(ai.NewUIMessage(fmt.Sprintf(format, args...)))
}

// SetLoading sets the loading flag.
func (a Actions) SetLoading(loading bool) {
	a.b.SetState(Partial{Loading: &loading})
}

// SetInputDisabled sets the input-disabled flag.
func (a Actions) SetInputDisabled(disabled bool) {
	a.b.SetState(Partial{InputDisabled: &disabled})
}

// TruncateFromRole removes the last message with role and everything after it.
func (a Actions) TruncateFromRole(role ai.Role) bool {
	var ok bool
	a.b.SetState(UpdateFunc(func(s State) State {
		s.Messages, ok = store.TruncateFromRole(s.Messages, role)
		return s
	}))
	return ok
}

// ClearMessages empties the transcript.
func (a Actions) ClearMessages() {
	a.b.SetState(Partial{Messages: Ptr([]ai.Message{})})
}

// Enqueue appends input to the pending queue.
func (a Actions) Enqueue(input string) {
	a.b.SetState(UpdateFunc(func(s State) State {
		s.Queue = append(s.Queue, input)
		return s
	}))
}

// Dequeue removes and returns the oldest queued input.
func (a Actions) Dequeue() (string, bool) {
	var (
		head string
		ok   bool
	)
	a.b.SetState(UpdateFunc(func(s State) State {
		if len(s.Queue) == 0 {
			return s
		}
		head, ok = s.Queue[0], true
		s.Queue = s.Queue[1:]
		return s
	}))
	return head, ok
}

// DrainQueue removes and returns every queued input.
func (a Actions) DrainQueue() []string {
	var drained []string
	a.b.SetState(UpdateFunc(func(s State) State {
		drained = s.Queue
		s.Queue = []string{}
		return s
	}))
	return drained
}

// ClearQueue discards every queued input.
func (a Actions) ClearQueue() {
	a.b.SetState(Partial{Queue: Ptr([]string{})})
}

// AddTask appends a task to the task list.
func (a Actions) AddTask(label string) {
	a.b.SetState(UpdateFunc(func(s State) State {
		s.TaskList = append(s.TaskList, Task{Label: label})
		return s
	}))
}

// CompleteTask marks the first incomplete task with label as completed.
func (a Actions) CompleteTask(label string) bool {
	var found bool
	a.b.SetState(UpdateFunc(func(s State) State {
		for i := range s.TaskList {
			if s.TaskList[i].Label == label && !s.TaskList[i].Completed {
				s.TaskList[i].Completed = true
				found = true
				break
			}
		}
		return s
	}))
	return found
}

// ClearTasks empties the task list.
func (a Actions) ClearTasks() {
	a.b.SetState(Partial{TaskList: Ptr([]Task{})})
}

// SetApprovalPolicy changes the approval policy. In-flight classification is
// unaffected; the next call sees the new policy.
func (a Actions) SetApprovalPolicy(p ai.ApprovalPolicy) error {
	if !p.Valid() {
		return fmt.Errorf("hook: invalid approval policy %q", p)
	}
	a.b.SetState(Partial{ApprovalPolicy: &p})
	return nil
}

// SetActiveAgent scopes subsequent work to the named agent.
func (a Actions) SetActiveAgent(name string) {
	a.b.SetState(Partial{Agent: &name})
}

// SetSlot stores a host value under key.
func (a Actions) SetSlot(key string, value any) {
	a.b.SetState(UpdateFunc(func(s State) State {
		slots := maps.Clone(s.Slots)
		if slots == nil {
			slots = map[string]any{}
		}
		slots[key] = value
		s.Slots = slots
		return s
	}))
}
