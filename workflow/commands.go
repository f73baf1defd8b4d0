package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/hook"
	"github.com/spetersoncode/tandem/internal/store"
)

// Command is a host command, typically typed as "/name args".
type Command struct {
	Description string
	Usage       string
	Run         func(ctx context.Context, args []string) error
}

// Commands returns the named commands the workflow supports.
func (w *Workflow) Commands() map[string]Command {
	return map[string]Command{
		"clear": {
			Description: "Clear the conversation, queue and task list",
			Usage:       "/clear",
			Run:         w.clear,
		},
		"retry": {
			Description: "Resend the last user message",
			Usage:       "/retry",
			Run:         w.retry,
		},
		"policy": {
			Description: "Show or change the approval policy",
			Usage:       "/policy [suggest|auto-edit|full-auto]",
			Run:         w.policy,
		},
		"tools": {
			Description: "List the available tools and tool providers",
			Usage:       "/tools",
			Run:         w.listTools,
		},
		"tasks": {
			Description: "Show the task list",
			Usage:       "/tasks",
			Run:         w.listTasks,
		},
	}
}

// RunCommand runs line, a command name with an optional leading slash
// followed by its arguments.
func (w *Workflow) RunCommand(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return ErrUnknownCommand
	}
	cmd, ok := w.Commands()[fields[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	return cmd.Run(ctx, fields[1:])
}

// idle checks that the workflow can take a command that rewrites state.
// It must be called with w.mu held.
func (w *Workflow) idle() error {
	if w.terminated {
		return ai.ErrAlreadyTerminated
	}
	if w.running {
		return ErrBusy
	}
	return nil
}

func (w *Workflow) clear(_ context.Context, _ []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.idle(); err != nil {
		return err
	}
	w.bridge.SetState(hook.Partial{
		Messages: hook.Ptr([]ai.Message{}),
		Queue:    hook.Ptr([]string{}),
		TaskList: hook.Ptr([]hook.Task{}),
	})
	w.gate.Forget()
	return nil
}

func (w *Workflow) retry(_ context.Context, _ []string) error {
	w.mu.Lock()
	if err := w.idle(); err != nil {
		w.mu.Unlock()
		return err
	}
	last, ok := store.LastOfRole(w.bridge.State().Messages, ai.RoleUser)
	if ok {
		w.bridge.Actions().TruncateFromRole(ai.RoleUser)
	}
	w.mu.Unlock()

	if !ok {
		w.bridge.Actions().Notify("Nothing to retry.")
		return nil
	}
	return w.Message(last.Text())
}

func (w *Workflow) policy(_ context.Context, args []string) error {
	if w.Terminated() {
		return ai.ErrAlreadyTerminated
	}
	approval := w.bridge.Approval()
	if len(args) == 0 {
		w.bridge.Actions().Notify("Approval policy: %s", PolicyLabel(approval.GetPolicy()))
		return nil
	}
	p, err := ai.ParseApprovalPolicy(args[0])
	if err != nil {
		return err
	}
	if err := approval.SetPolicy(p); err != nil {
		return err
	}
	w.bridge.Actions().Notify("Approval policy set to %s.", PolicyLabel(p))
	return nil
}

func (w *Workflow) listTools(ctx context.Context, _ []string) error {
	if w.Terminated() {
		return ai.ErrAlreadyTerminated
	}
	var sb strings.Builder
	sb.WriteString("Tools:")
	for _, t := range w.tools(ctx) {
		fmt.Fprintf(&sb, "\n  %s", t.Name)
	}

	providers := w.mcp.Providers()
	if len(providers) > 0 {
		sb.WriteString("\nProviders:")
	}
	for _, p := range providers {
		switch {
		case p.Connected:
			fmt.Fprintf(&sb, "\n  %s (%s): %d tools", p.Name, p.Transport, p.Tools)
		case p.Error != "":
			fmt.Fprintf(&sb, "\n  %s (%s): not connected: %s", p.Name, p.Transport, p.Error)
		default:
			fmt.Fprintf(&sb, "\n  %s (%s): not connected", p.Name, p.Transport)
		}
	}
	w.bridge.Actions().Notify("%s", sb.String())
	return nil
}

func (w *Workflow) listTasks(_ context.Context, _ []string) error {
	if w.Terminated() {
		return ai.ErrAlreadyTerminated
	}
	tasks := w.bridge.State().TaskList
	if len(tasks) == 0 {
		w.bridge.Actions().Notify("No tasks.")
		return nil
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		lines[i] = fmt.Sprintf("[%s] %s", mark, t.Label)
	}
	w.bridge.Actions().Notify("%s", strings.Join(lines, "\n"))
	return nil
}

// CommandNames returns the command names in sorted order.
func (w *Workflow) CommandNames() []string {
	cmds := w.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
