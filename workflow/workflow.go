package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/cancel"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/gate"
	"github.com/spetersoncode/tandem/hook"
	"github.com/spetersoncode/tandem/internal/store"
	"github.com/spetersoncode/tandem/mcp"
	"github.com/spetersoncode/tandem/model"
)

// Reason explains why a turn loop ended.
type Reason string

const (
	// ReasonComplete indicates the model finished without tool calls.
	ReasonComplete Reason = "complete"

	// ReasonMaxTurns indicates the turn bound was reached.
	ReasonMaxTurns Reason = "max_turns"

	// ReasonHalted indicates the user answered a confirmation with NoContinue.
	ReasonHalted Reason = "halted"

	// ReasonError indicates the model call failed.
	ReasonError Reason = "error"

	// ReasonStopped indicates Stop or Terminate superseded the loop.
	ReasonStopped Reason = "stopped"
)

const explainPrompt = `You explain shell commands and file patches to a developer who must decide whether to allow them.
Say what the command or patch does, which files or resources it touches, and whether it can lose data.
Answer in at most five sentences.`

// Workflow is the turn-based orchestration engine. It is safe for
// concurrent use; at most one turn loop runs at a time.
type Workflow struct {
	deps   Deps
	opts   *Options
	bridge *hook.Bridge
	gate   *gate.Gate
	mcp    *mcp.Manager
	logger *slog.Logger
	hard   *cancel.Scope

	wg     sync.WaitGroup
	initMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	// mu guards the fields below. It is held across every commit whose
	// validity depends on the generation, so a loop can never commit after
	// Stop or Terminate returns.
	mu          sync.Mutex
	generation  uint64
	running     bool
	turn        *cancel.Scope
	initialized bool
	terminated  bool
	usage       ai.Usage
}

// New creates a Workflow bound to bridge. The bridge's tool runner is set to
// the workflow's execution gate.
func New(deps Deps, bridge *hook.Bridge, opts ...Option) (*Workflow, error) {
	if deps.Caller == nil {
		return nil, errors.New("workflow: a model caller is required")
	}
	if bridge == nil {
		return nil, errors.New("workflow: a hook bridge is required")
	}
	if deps.Session == nil {
		deps.Session = ai.NewSession("", "", bridge.Logger())
	}
	manager := deps.Manager
	if manager == nil {
		manager = mcp.NewManager(deps.Session)
	}

	w := &Workflow{
		deps:   deps,
		opts:   ApplyOptions(opts...),
		bridge: bridge,
		mcp:    manager,
		logger: deps.Session.Log().With("session", deps.Session.ID),
		hard:   cancel.NewHard(),
	}
	w.gate = gate.New(deps.Session, w.gateOptions()...)
	w.hard.OnCancel(func() { _ = w.shutdown() })
	bridge.SetToolRunner(w.runTool)
	return w, nil
}

func (w *Workflow) gateOptions() []gate.Option {
	approval := w.bridge.Approval()
	classifier := w.deps.Classifier
	if classifier == nil {
		classifier = approval.Classifier()
	}
	opts := []gate.Option{
		gate.WithClassifier(classifier),
		gate.WithToolProvider(w.mcp),
		gate.WithSelector(w.bridge.Prompts()),
		gate.WithExemptCommands(approval.ExemptCommands()...),
		gate.WithMaxExplains(w.opts.MaxExplains),
		gate.WithMetrics(w.deps.Metrics),
	}
	if w.deps.Executor != nil {
		opts = append(opts, gate.WithExecutor(w.deps.Executor))
	}
	if w.deps.Patcher != nil {
		opts = append(opts, gate.WithPatchApplier(w.deps.Patcher))
	}
	if w.opts.Explain {
		opts = append(opts, gate.WithExplainer(gate.ExplainerFunc(w.explain)))
	}
	return opts
}

// Initialize connects the configured external tool providers. Providers that
// fail to connect are logged and left disconnected. Calling Initialize more
// than once is a no-op.
func (w *Workflow) Initialize(ctx context.Context) error {
	w.initMu.Lock()
	defer w.initMu.Unlock()

	w.mu.Lock()
	terminated, initialized := w.terminated, w.initialized
	w.mu.Unlock()
	if terminated {
		return ai.ErrAlreadyTerminated
	}
	if initialized {
		return nil
	}

	if len(w.deps.MCPServers) > 0 {
		w.mcp.Initialize(ctx, w.deps.MCPServers)
	}
	connected := 0
	for _, p := range w.mcp.Providers() {
		if p.Connected {
			connected++
		}
	}
	w.deps.Metrics.ProvidersConnected(connected)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ai.ErrAlreadyTerminated
	}
	w.initialized = true
	w.logger.Info("workflow initialized", "model", w.deps.Session.Model, "providers", connected)
	return nil
}

// Message submits user input. When the workflow is idle the input (after
// anything still queued) is appended to the transcript and a turn loop
// starts. When a loop is running the input is queued for its next turn.
func (w *Workflow) Message(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ai.ErrAlreadyTerminated
	}
	if !w.initialized {
		return ErrNotInitialized
	}
	if w.running {
		w.bridge.Actions().Enqueue(input)
		w.logger.Debug("input queued", "generation", w.generation)
		return nil
	}

	w.generation++
	g := w.generation
	w.running = true
	w.turn = w.hard.Child()
	w.bridge.Update(func(s hook.State) (hook.State, []event.Event) {
		before := len(s.Messages)
		for _, queued := range s.Queue {
			s.Messages = store.Append(s.Messages, ai.NewUserMessage(queued))
		}
		s.Messages = store.Append(s.Messages, ai.NewUserMessage(input))
		s.Queue = []string{}
		s.Loading = true
		events := []event.Event{{Type: event.RunStart, Generation: g}}
		events = append(events, hook.MessageEvents(store.Copy(s.Messages[before:]))...)
		return s, stamp(g, 0, events)
	})

	w.wg.Add(1)
	go w.run(w.turn, g)
	return nil
}

// Stop cancels the running turn loop and returns to idle. The transcript is
// kept; results that arrive afterwards are discarded. Stop on an idle
// workflow does nothing.
func (w *Workflow) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminated {
		return ai.ErrAlreadyTerminated
	}
	if !w.running {
		return nil
	}

	g := w.generation
	w.generation++
	w.running = false
	w.turn.Cancel(errStopped)
	w.turn = nil
	w.bridge.Commit(hook.Partial{Loading: hook.Ptr(false)},
		event.Event{Type: event.RunStopped, Generation: g})
	w.logger.Info("turn loop stopped", "generation", g)
	return nil
}

// Terminate cancels all work, closes the external tool providers and makes
// the workflow unusable. The transcript is kept. It returns the joined
// provider close errors, if any.
func (w *Workflow) Terminate() error {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return ai.ErrAlreadyTerminated
	}
	g := w.generation
	w.terminated = true
	w.generation++
	w.running = false
	w.turn = nil
	w.hard.Cancel(ai.ErrAlreadyTerminated)
	w.bridge.Commit(hook.Partial{Loading: hook.Ptr(false), InputDisabled: hook.Ptr(true)},
		event.Event{Type: event.Terminated, Generation: g})
	w.mu.Unlock()

	w.logger.Info("workflow terminated")
	return w.shutdown()
}

func (w *Workflow) shutdown() error {
	w.closeOnce.Do(func() {
		if err := w.mcp.CloseAll(); err != nil {
			w.closeErr = fmt.Errorf("workflow: closing tool providers: %w", err)
		}
	})
	return w.closeErr
}

// Wait blocks until every turn loop started so far has returned, including
// loops superseded by Stop that are still unwinding.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

// Generation returns the current generation.
func (w *Workflow) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Running reports whether a turn loop is active.
func (w *Workflow) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Terminated reports whether Terminate has been called.
func (w *Workflow) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

// Usage returns the token usage of every model call so far.
func (w *Workflow) Usage() ai.Usage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.usage
}

// SessionID returns the ID of the session the workflow runs in.
func (w *Workflow) SessionID() string {
	return w.deps.Session.ID
}

// Bridge returns the hook bridge the workflow commits to.
func (w *Workflow) Bridge() *hook.Bridge {
	return w.bridge
}

// Manager returns the external tool provider manager.
func (w *Workflow) Manager() *mcp.Manager {
	return w.mcp
}

func (w *Workflow) run(turn *cancel.Scope, g uint64) {
	defer w.wg.Done()
	start := time.Now()
	reason := ReasonError
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("turn loop panicked", "generation", g, "panic", r)
			reason = w.end(g, ReasonError, fmt.Sprintf("Internal error: %v", r), nil)
		}
		turn.Cancel(nil)
		w.deps.Metrics.TurnLoop(string(reason))
		w.logger.Info("turn loop ended", "generation", g, "reason", reason, "duration", time.Since(start))
	}()
	reason = w.loop(turn, g)
	if reason == ReasonStopped && w.current(g) {
		// Stop and Terminate advance the generation, so a loop that gave up
		// while still current has to return the workflow to idle itself.
		w.logger.Warn("turn loop exited without ending", "generation", g)
		reason = w.end(g, ReasonStopped, "", nil)
	}
}

func (w *Workflow) loop(turn *cancel.Scope, g uint64) Reason {
	ctx := turn.Context()
	for step := 1; step <= w.opts.MaxTurns; step++ {
		transcript, ok := w.beginTurn(g, step)
		if !ok {
			return ReasonStopped
		}

		res, err := w.deps.Caller.Call(ctx, model.Request{
			Messages:   w.modelContext(transcript),
			Tools:      w.tools(ctx),
			Generation: g,
		})
		if err != nil {
			if !turn.Active() {
				return ReasonStopped
			}
			w.logger.Warn("model call failed", "generation", g, "step", step, "error", err)
			return w.end(g, ReasonError, fmt.Sprintf("Model call failed: %v", err), err)
		}
		if res.Generation != g || !turn.Active() {
			w.logger.Debug("discarding stale model result", "generation", res.Generation)
			return ReasonStopped
		}
		w.addUsage(res.Usage)

		if !w.commitMessages(g, step, res.Messages) {
			return ReasonStopped
		}
		calls := res.ToolCalls()
		halted, ok := w.dispatch(turn, g, step, calls)
		if !ok {
			return ReasonStopped
		}
		if !w.emit(g, event.Event{Type: event.TurnEnd, Step: step}) {
			return ReasonStopped
		}

		if halted {
			return w.end(g, ReasonHalted, "Stopped at your request.", nil)
		}
		if len(calls) == 0 && res.FinishReason.Complete() {
			if reason, done := w.complete(g); done {
				return reason
			}
		}
	}
	return w.end(g, ReasonMaxTurns,
		fmt.Sprintf("Stopped after %d turns. Send a message to continue.", w.opts.MaxTurns), nil)
}

// beginTurn drains the queue into the transcript and returns a snapshot of
// it for the model context.
func (w *Workflow) beginTurn(g uint64, step int) ([]ai.Message, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != g {
		return nil, false
	}

	start := event.Event{Type: event.TurnStart}
	state := w.bridge.State()
	if len(state.Queue) == 0 {
		w.bridge.Emit(stamp(g, step, []event.Event{start})...)
		return state.Messages, true
	}
	state = w.bridge.Update(func(s hook.State) (hook.State, []event.Event) {
		before := len(s.Messages)
		for _, queued := range s.Queue {
			s.Messages = store.Append(s.Messages, ai.NewUserMessage(queued))
		}
		s.Queue = []string{}
		events := hook.MessageEvents(store.Copy(s.Messages[before:]))
		return s, stamp(g, step, append(events, start))
	})
	return state.Messages, true
}

// modelContext assembles the messages sent to the model.
func (w *Workflow) modelContext(transcript []ai.Message) []ai.Message {
	system := w.opts.SystemPrompt
	if w.opts.Instructions != "" {
		system += "\n\n" + w.opts.Instructions
	}
	msgs := make([]ai.Message, 0, len(transcript)+2)
	msgs = append(msgs, ai.NewSystemMessage(system))
	return append(msgs, closeOrphans(transcript)...)
}

// closeOrphans drops UI messages and adds an "aborted" result for every
// tool call left without one by Stop. The transcript itself is not changed.
func closeOrphans(transcript []ai.Message) []ai.Message {
	out := make([]ai.Message, 0, len(transcript))
	for i := 0; i < len(transcript); i++ {
		m := transcript[i]
		if m.Role == ai.RoleUI {
			continue
		}
		out = append(out, m)
		calls := m.ToolCalls()
		if m.Role != ai.RoleAssistant || len(calls) == 0 {
			continue
		}

		answered := make(map[string]bool, len(calls))
		for i+1 < len(transcript) && (transcript[i+1].Role == ai.RoleTool || transcript[i+1].Role == ai.RoleUI) {
			i++
			if transcript[i].Role == ai.RoleUI {
				continue
			}
			out = append(out, transcript[i])
			for _, r := range transcript[i].ToolResults() {
				answered[r.ToolCallID] = true
			}
		}

		var aborted []ai.ToolResult
		for _, call := range calls {
			if !answered[call.ID] {
				aborted = append(aborted, ai.NewErrorResult(call, "aborted"))
			}
		}
		if len(aborted) > 0 {
			out = append(out, ai.NewToolResultMessage(aborted...))
		}
	}
	return out
}

// tools returns the native tools followed by the external catalog. External
// tools named like a native tool are unreachable and left out.
func (w *Workflow) tools(ctx context.Context) []ai.Tool {
	tools := ai.NativeTools()
	for _, t := range w.mcp.AllTools(ctx) {
		switch t.Name {
		case ai.ToolShell, ai.ToolApplyPatch, ai.ToolUserSelect:
			w.logger.Debug("external tool shadowed by native tool", "tool", t.Name)
			continue
		}
		tools = append(tools, t)
	}
	return tools
}

func (w *Workflow) commitMessages(g uint64, step int, msgs []ai.Message) bool {
	if len(msgs) == 0 {
		return w.current(g)
	}
	return w.update(g, func(s hook.State) (hook.State, []event.Event) {
		before := len(s.Messages)
		for _, m := range msgs {
			if m.Role == "" {
				m.Role = ai.RoleAssistant
			}
			s.Messages = store.Append(s.Messages, m)
		}
		return s, stamp(g, step, hook.MessageEvents(store.Copy(s.Messages[before:])))
	})
}

// dispatch passes calls through the gate in order. It reports whether a
// NoContinue decision halted the turn and whether g is still current.
func (w *Workflow) dispatch(turn *cancel.Scope, g uint64, step int, calls []ai.ToolCall) (halted, ok bool) {
	for _, call := range calls {
		if halted {
			skipped := gate.Outcome{Result: ai.NewErrorResult(call, "skipped: the user stopped this turn")}
			if !w.commitResult(g, step, call, skipped) {
				return halted, false
			}
			continue
		}

		if !w.emit(g, event.Event{Type: event.ToolCallStart, Step: step, ToolCall: &call}) {
			return halted, false
		}
		out := w.execute(turn, call)
		if out.Dropped {
			w.bridge.Emit(event.Event{Type: event.ToolCallDropped, Generation: g, Step: step, ToolCall: &call})
			w.logger.Debug("tool call dropped", "tool", call.Name, "call", call.ID)
			return halted, false
		}
		if !w.commitResult(g, step, call, out) {
			w.bridge.Emit(event.Event{Type: event.ToolCallDropped, Generation: g, Step: step, ToolCall: &call})
			return halted, false
		}
		halted = out.Halt
	}
	return halted, true
}

func (w *Workflow) execute(turn *cancel.Scope, call ai.ToolCall) gate.Outcome {
	scope := turn.Child()
	defer scope.Cancel(nil)
	return w.gate.Execute(scope, call, w.bridge.Approval().GetPolicy(), w.writableRoots(), w.bridge.Prompts().Confirm)
}

func (w *Workflow) commitResult(g uint64, step int, call ai.ToolCall, out gate.Outcome) bool {
	result := out.Result
	return w.update(g, func(s hook.State) (hook.State, []event.Event) {
		var events []event.Event
		switch out.Decision {
		case ai.DecisionApprove, ai.DecisionAlways:
			events = append(events, event.Event{Type: event.ToolCallApproved, ToolCall: &call})
		case ai.DecisionDeny, ai.DecisionNoContinue:
			events = append(events, event.Event{Type: event.ToolCallRejected, ToolCall: &call, Reason: result.Content})
		}
		before := len(s.Messages)
		s.Messages = store.Append(s.Messages, ai.NewToolResultMessage(result))
		events = append(events, hook.MessageEvents(store.Copy(s.Messages[before:]))...)
		events = append(events, event.Event{Type: event.ToolCallResult, ToolCall: &call, ToolResult: &result})
		return s, stamp(g, step, events)
	})
}

// complete ends the loop after a finished turn. It reports false, keeping
// the loop running, when input was queued in the meantime.
func (w *Workflow) complete(g uint64) (Reason, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation == g && len(w.bridge.State().Queue) > 0 {
		return "", false
	}
	return w.endLocked(g, ReasonComplete, "", nil), true
}

// end returns loop g to idle, optionally adding a UI notice. It returns
// ReasonStopped when g was superseded.
func (w *Workflow) end(g uint64, reason Reason, notice string, cause error) Reason {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endLocked(g, reason, notice, cause)
}

func (w *Workflow) endLocked(g uint64, reason Reason, notice string, cause error) Reason {
	if w.generation != g {
		return ReasonStopped
	}
	w.running = false
	w.turn = nil
	w.bridge.Update(func(s hook.State) (hook.State, []event.Event) {
		s.Loading = false
		var events []event.Event
		if notice != "" {
			before := len(s.Messages)
			s.Messages = store.Append(s.Messages, ai.NewUIMessage(notice))
			events = hook.MessageEvents(store.Copy(s.Messages[before:]))
		}
		if cause != nil {
			events = append(events, event.Event{Type: event.RunError, Error: cause, Reason: string(reason)})
		} else {
			events = append(events, event.Event{Type: event.RunEnd, Reason: string(reason)})
		}
		return s, stamp(g, 0, events)
	})
	return reason
}

// update commits fn to the bridge if g is still the current generation.
func (w *Workflow) update(g uint64, fn func(hook.State) (hook.State, []event.Event)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != g {
		return false
	}
	w.bridge.Update(fn)
	return true
}

func (w *Workflow) emit(g uint64, e event.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != g {
		return false
	}
	w.bridge.Emit(stamp(g, e.Step, []event.Event{e})...)
	return true
}

func (w *Workflow) current(g uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation == g
}

func (w *Workflow) addUsage(u ai.Usage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.usage.InputTokens += u.InputTokens
	w.usage.OutputTokens += u.OutputTokens
}

func (w *Workflow) writableRoots() []string {
	roots := w.bridge.Approval().WritableRoots()
	if len(roots) == 0 && w.deps.Session.Workdir != "" {
		roots = []string{w.deps.Session.Workdir}
	}
	return roots
}

// runTool backs the bridge's Tools().Execute. Calls run under the hard
// scope and the caller's context.
func (w *Workflow) runTool(ctx context.Context, call ai.ToolCall) ai.ToolResult {
	scope := w.hard.Child()
	defer scope.Cancel(nil)
	stop := context.AfterFunc(ctx, func() { scope.Cancel(context.Cause(ctx)) })
	defer stop()

	out := w.gate.Execute(scope, call, w.bridge.Approval().GetPolicy(), w.writableRoots(), w.bridge.Prompts().Confirm)
	if out.Dropped {
		return ai.NewErrorResult(call, "cancelled")
	}
	return out.Result
}

func (w *Workflow) explain(ctx context.Context, req ai.ConfirmRequest) (string, error) {
	var subject string
	if req.Patch != nil {
		body := req.Preview
		if body == "" {
			body = strings.Join(req.Patch.Paths(), "\n")
		}
		subject = "Explain this patch:\n\n" + body
	} else {
		subject = "Explain this shell command:\n\n" + strings.Join(req.Command, " ")
		if req.Workdir != "" {
			subject += "\n\nWorking directory: " + req.Workdir
		}
	}

	res, err := w.deps.Caller.Call(ctx, model.Request{
		Messages: []ai.Message{ai.NewSystemMessage(explainPrompt), ai.NewUserMessage(subject)},
	})
	if err != nil {
		return "", fmt.Errorf("workflow: explain: %w", err)
	}
	var sb strings.Builder
	for _, m := range res.Messages {
		sb.WriteString(m.Text())
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("workflow: explain: empty response")
	}
	return text, nil
}

// stamp sets the generation, and the step where one applies, on events.
func stamp(g uint64, step int, events []event.Event) []event.Event {
	for i := range events {
		events[i].Generation = g
		if step > 0 && events[i].Step == 0 {
			events[i].Step = step
		}
	}
	return events
}
