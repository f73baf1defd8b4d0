package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/gate"
	"github.com/spetersoncode/tandem/hook"
	"github.com/spetersoncode/tandem/model"
)

// scriptedCaller answers the n-th model call (1-indexed) with reply.
type scriptedCaller struct {
	mu    sync.Mutex
	reqs  []model.Request
	reply func(ctx context.Context, n int, req model.Request) (*model.Result, error)
}

func (c *scriptedCaller) Call(ctx context.Context, req model.Request) (*model.Result, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	n := len(c.reqs)
	c.mu.Unlock()
	return c.reply(ctx, n, req)
}

func (c *scriptedCaller) requests() []model.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Request(nil), c.reqs...)
}

type fakeExecutor struct {
	mu      sync.Mutex
	inputs  []gate.ExecInput
	result  gate.ExecResult
	started chan struct{}
	release chan struct{}
}

func (e *fakeExecutor) Exec(_ context.Context, in gate.ExecInput) (gate.ExecResult, error) {
	e.mu.Lock()
	e.inputs = append(e.inputs, in)
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		// Ignores ctx on purpose: the command "finishes" after Stop.
		<-e.release
	}
	return e.result, nil
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inputs)
}

type fakePrompter struct {
	mu       sync.Mutex
	decide   func(req ai.ConfirmRequest) ai.CommandConfirmation
	err      error
	confirms []ai.ConfirmRequest
}

func (p *fakePrompter) Confirm(_ context.Context, req ai.ConfirmRequest) (ai.CommandConfirmation, error) {
	p.mu.Lock()
	p.confirms = append(p.confirms, req)
	p.mu.Unlock()
	if p.err != nil {
		return ai.CommandConfirmation{}, p.err
	}
	if p.decide == nil {
		return ai.CommandConfirmation{Decision: ai.DecisionDeny}, nil
	}
	return p.decide(req), nil
}

func (p *fakePrompter) Select(context.Context, string, []string, string) (string, error) {
	return "", nil
}

func (p *fakePrompter) Input(context.Context, string, string, string) (string, error) {
	return "", nil
}

func shellCall(id string, argv ...string) ai.ToolCall {
	args, _ := json.Marshal(map[string]any{"cmd": argv, "workdir": "."})
	return ai.ToolCall{ID: id, Name: ai.ToolShell, Arguments: string(args)}
}

func reply(req model.Request, text string, calls ...ai.ToolCall) *model.Result {
	msg := ai.Message{Role: ai.RoleAssistant}
	if text != "" {
		msg.Parts = append(msg.Parts, ai.NewTextPart(text))
	}
	for _, c := range calls {
		msg.Parts = append(msg.Parts, ai.NewToolCallPart(c))
	}
	finish := ai.FinishStop
	if len(calls) > 0 {
		finish = ai.FinishToolCalls
	}
	return &model.Result{
		Messages:     []ai.Message{msg},
		FinishReason: finish,
		Usage:        ai.Usage{InputTokens: 10, OutputTokens: 5},
		Generation:   req.Generation,
	}
}

func newWorkflow(t *testing.T, policy ai.ApprovalPolicy, caller model.Caller, exec gate.Executor, prompter *fakePrompter, opts ...Option) (*Workflow, *hook.Bridge) {
	t.Helper()
	dir := t.TempDir()
	if prompter == nil {
		prompter = &fakePrompter{}
	}
	bridge := hook.New(hook.Options{Policy: policy, Prompter: prompter, Workdir: dir})
	wf, err := New(Deps{
		Session:  ai.NewSession("test-model", dir, nil),
		Caller:   caller,
		Executor: exec,
	}, bridge, opts...)
	require.NoError(t, err)
	require.NoError(t, wf.Initialize(context.Background()))
	t.Cleanup(func() {
		_ = wf.Terminate()
		wf.Wait()
	})
	return wf, bridge
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func TestNew(t *testing.T) {
	t.Run("requires a caller", func(t *testing.T) {
		_, err := New(Deps{}, hook.New(hook.Options{}))
		assert.Error(t, err)
	})

	t.Run("requires a bridge", func(t *testing.T) {
		_, err := New(Deps{Caller: &scriptedCaller{}}, nil)
		assert.Error(t, err)
	})

	t.Run("message before initialize fails", func(t *testing.T) {
		wf, err := New(Deps{Caller: &scriptedCaller{}}, hook.New(hook.Options{}))
		require.NoError(t, err)
		assert.ErrorIs(t, wf.Message("hi"), ErrNotInitialized)
	})
}

func TestListFilesAutoEdit(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			return reply(req, "", shellCall("call_1", "ls")), nil
		}
		return reply(req, "There are two files: a.txt and b.txt."), nil
	}}
	exec := &fakeExecutor{result: gate.ExecResult{Output: "a.txt\nb.txt", Metadata: gate.ExecMetadata{ExitCode: gate.IntPtr(0)}}}
	wf, bridge := newWorkflow(t, ai.PolicyAutoEdit, caller, exec, nil)

	require.NoError(t, wf.Message("list files"))
	wf.Wait()

	state := bridge.State()
	assert.False(t, state.Loading)
	require.Len(t, state.Messages, 4)
	assert.Equal(t, ai.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "list files", state.Messages[0].Text())

	calls := state.Messages[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, ai.ToolShell, calls[0].Name)

	results := state.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "call_1", results[0].ToolCallID)
	assert.Equal(t, "a.txt\nb.txt", results[0].Content)
	assert.False(t, results[0].IsError)

	assert.Equal(t, "There are two files: a.txt and b.txt.", state.Messages[3].Text())
	assert.Equal(t, 1, exec.count())
	assert.Equal(t, []string{"ls"}, exec.inputs[0].Command)
	assert.Equal(t, ai.Usage{InputTokens: 20, OutputTokens: 10}, wf.Usage())

	// The second model call saw the tool result.
	reqs := caller.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, ai.RoleSystem, reqs[1].Messages[0].Role)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, ai.RoleTool, last.Role)
}

func TestSuggestDeny(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			return reply(req, "", shellCall("call_1", "ls")), nil
		}
		return reply(req, "Okay, I won't list the files."), nil
	}}
	exec := &fakeExecutor{result: gate.ExecResult{Output: "a.txt\nb.txt"}}
	prompter := &fakePrompter{decide: func(ai.ConfirmRequest) ai.CommandConfirmation {
		return ai.CommandConfirmation{Decision: ai.DecisionDeny}
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, exec, prompter)

	require.NoError(t, wf.Message("list files"))
	wf.Wait()

	state := bridge.State()
	assert.False(t, state.Loading)
	assert.Equal(t, 0, exec.count())
	require.Len(t, prompter.confirms, 1)
	assert.Equal(t, []string{"ls"}, prompter.confirms[0].Command)

	results := state.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.NotContains(t, results[0].Content, "a.txt")
}

func TestConfirmErrorKeepsLoopAlive(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			return reply(req, "", shellCall("call_1", "make")), nil
		}
		return reply(req, "done"), nil
	}}
	exec := &fakeExecutor{}
	prompter := &fakePrompter{err: fmt.Errorf("host went away: %w", context.Canceled)}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, exec, prompter)

	require.NoError(t, wf.Message("build it"))
	wf.Wait()

	state := bridge.State()
	assert.False(t, wf.Running())
	assert.False(t, state.Loading)
	assert.Zero(t, exec.count())
	results := state.Messages[2].ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "confirmation failed")

	require.NoError(t, wf.Message("again"))
	wf.Wait()
	assert.Empty(t, bridge.State().Queue)
	assert.Len(t, caller.requests(), 3)
	assert.False(t, bridge.State().Loading)
}

func TestStopDuringCommand(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		return reply(req, "", shellCall("call_1", "sleep", "30")), nil
	}}
	exec := &fakeExecutor{
		result:  gate.ExecResult{Output: "done", Metadata: gate.ExecMetadata{ExitCode: gate.IntPtr(0)}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	wf, bridge := newWorkflow(t, ai.PolicyFullAuto, caller, exec, nil)

	var stopped []event.Event
	var mu sync.Mutex
	bridge.Subscribe(func(e event.Event) {
		if e.Type == event.RunStopped || e.Type == event.ToolCallResult {
			mu.Lock()
			stopped = append(stopped, e)
			mu.Unlock()
		}
	})

	require.NoError(t, wf.Message("wait a bit"))
	waitFor(t, exec.started)

	g := wf.Generation()
	require.NoError(t, wf.Stop())
	assert.False(t, bridge.State().Loading)
	assert.False(t, wf.Running())
	assert.Greater(t, wf.Generation(), g)
	before := bridge.State().Messages

	close(exec.release)
	wf.Wait()

	after := bridge.State()
	assert.Equal(t, before, after.Messages)
	assert.Len(t, after.Messages, 2)
	assert.False(t, after.Loading)
	assert.Len(t, caller.requests(), 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stopped, 1)
	assert.Equal(t, event.RunStopped, stopped[0].Type)
}

func TestStaleModelResultDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			started <- struct{}{}
			<-release
			return reply(req, "late answer"), nil
		}
		return reply(req, "fresh answer"), nil
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)

	require.NoError(t, wf.Message("one"))
	waitFor(t, started)
	require.NoError(t, wf.Stop())
	close(release)
	wf.Wait()

	state := bridge.State()
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "one", state.Messages[0].Text())

	require.NoError(t, wf.Message("two"))
	wf.Wait()

	state = bridge.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "fresh answer", state.Messages[2].Text())
}

func TestOrphanedCallClosedInModelContext(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			return reply(req, "", shellCall("call_1", "sleep", "30")), nil
		}
		return reply(req, "ok"), nil
	}}
	exec := &fakeExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	wf, bridge := newWorkflow(t, ai.PolicyFullAuto, caller, exec, nil)

	require.NoError(t, wf.Message("first"))
	waitFor(t, exec.started)
	require.NoError(t, wf.Stop())
	close(exec.release)
	wf.Wait()

	require.NoError(t, wf.Message("second"))
	wf.Wait()

	reqs := caller.requests()
	require.Len(t, reqs, 2)
	var aborted []ai.ToolResult
	for _, m := range reqs[1].Messages {
		aborted = append(aborted, m.ToolResults()...)
	}
	require.Len(t, aborted, 1)
	assert.Equal(t, "call_1", aborted[0].ToolCallID)
	assert.Equal(t, "aborted", aborted[0].Content)

	// The transcript itself never got the synthetic result.
	for _, m := range bridge.State().Messages {
		assert.Empty(t, m.ToolResults())
	}
}

func TestMaxTurns(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		return reply(req, "", shellCall("call", "ls")), nil
	}}
	exec := &fakeExecutor{result: gate.ExecResult{Output: "a.txt"}}
	wf, bridge := newWorkflow(t, ai.PolicyFullAuto, caller, exec, nil, WithMaxTurns(3))

	require.NoError(t, wf.Message("loop forever"))
	wf.Wait()

	assert.Len(t, caller.requests(), 3)
	assert.Equal(t, 3, exec.count())
	state := bridge.State()
	assert.False(t, state.Loading)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, ai.RoleUI, last.Role)
	assert.Contains(t, last.Text(), "Stopped after 3 turns")
}

func TestModelError(t *testing.T) {
	caller := &scriptedCaller{reply: func(context.Context, int, model.Request) (*model.Result, error) {
		return nil, errors.New("boom")
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)

	var runErrors int
	bridge.Subscribe(func(e event.Event) {
		if e.Type == event.RunError {
			runErrors++
		}
	})

	require.NoError(t, wf.Message("hello"))
	wf.Wait()

	state := bridge.State()
	assert.False(t, state.Loading)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, ai.RoleUI, state.Messages[1].Role)
	assert.Contains(t, state.Messages[1].Text(), "boom")
	assert.Equal(t, 1, runErrors)

	// The workflow stays usable.
	caller.reply = func(_ context.Context, _ int, req model.Request) (*model.Result, error) {
		return reply(req, "hi"), nil
	}
	require.NoError(t, wf.Message("again"))
	wf.Wait()
	assert.Equal(t, "hi", bridge.State().Messages[3].Text())
}

func TestNoContinueHaltsAndSkipsRemainingCalls(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, _ int, req model.Request) (*model.Result, error) {
		return reply(req, "", shellCall("call_1", "make", "clean"), shellCall("call_2", "ls")), nil
	}}
	exec := &fakeExecutor{}
	prompter := &fakePrompter{decide: func(ai.ConfirmRequest) ai.CommandConfirmation {
		return ai.CommandConfirmation{Decision: ai.DecisionNoContinue}
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, exec, prompter)

	require.NoError(t, wf.Message("clean up"))
	wf.Wait()

	assert.Len(t, caller.requests(), 1)
	assert.Equal(t, 0, exec.count())
	assert.Len(t, prompter.confirms, 1)

	var results []ai.ToolResult
	for _, m := range bridge.State().Messages {
		results = append(results, m.ToolResults()...)
	}
	require.Len(t, results, 2)
	assert.Equal(t, "call_1", results[0].ToolCallID)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "call_2", results[1].ToolCallID)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "skipped")
	assert.False(t, bridge.State().Loading)
}

func TestQueuedInputRunsNextTurn(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if n == 1 {
			started <- struct{}{}
			<-release
			return reply(req, "first answer"), nil
		}
		return reply(req, "second answer"), nil
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)

	require.NoError(t, wf.Message("first"))
	waitFor(t, started)
	require.NoError(t, wf.Message("second"))
	assert.Equal(t, []string{"second"}, bridge.State().Queue)

	close(release)
	wf.Wait()

	state := bridge.State()
	assert.Empty(t, state.Queue)
	assert.False(t, state.Loading)
	var texts []string
	for _, m := range state.Messages {
		texts = append(texts, m.Text())
	}
	assert.Equal(t, []string{"first", "first answer", "second", "second answer"}, texts)
	assert.Len(t, caller.requests(), 2)
}

func TestLoadingTransitionsOncePerMessage(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, _ int, req model.Request) (*model.Result, error) {
		return reply(req, "done"), nil
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)

	var mu sync.Mutex
	var starts int
	bridge.Subscribe(func(e event.Event) {
		if e.Type == event.RunStart {
			mu.Lock()
			starts++
			mu.Unlock()
		}
	})

	for i := range 3 {
		require.NoError(t, wf.Message("go"))
		wf.Wait()
		assert.False(t, bridge.State().Loading)
		mu.Lock()
		assert.Equal(t, i+1, starts)
		mu.Unlock()
	}
}

func TestTerminate(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, _ int, req model.Request) (*model.Result, error) {
		return reply(req, "done"), nil
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)
	require.NoError(t, wf.Message("hello"))
	wf.Wait()

	require.NoError(t, wf.Terminate())
	state := bridge.State()
	assert.Len(t, state.Messages, 2)
	assert.True(t, state.InputDisabled)
	assert.False(t, state.Loading)

	assert.ErrorIs(t, wf.Message("more"), ai.ErrAlreadyTerminated)
	assert.ErrorIs(t, wf.Stop(), ai.ErrAlreadyTerminated)
	assert.ErrorIs(t, wf.Terminate(), ai.ErrAlreadyTerminated)
	assert.ErrorIs(t, wf.Initialize(context.Background()), ai.ErrAlreadyTerminated)
	assert.Len(t, bridge.State().Messages, 2)
}

func TestTerminateWhileRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	caller := &scriptedCaller{reply: func(ctx context.Context, _ int, req model.Request) (*model.Result, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}}
	wf, bridge := newWorkflow(t, ai.PolicySuggest, caller, nil, nil)

	require.NoError(t, wf.Message("hello"))
	waitFor(t, started)
	require.NoError(t, wf.Terminate())
	wf.Wait()

	state := bridge.State()
	assert.False(t, state.Loading)
	assert.Len(t, state.Messages, 1)
}

func TestExplainAsksModel(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ context.Context, n int, req model.Request) (*model.Result, error) {
		if req.Generation == 0 {
			return reply(req, "It lists files."), nil
		}
		if n == 1 {
			return reply(req, "", shellCall("call_1", "ls")), nil
		}
		return reply(req, "done"), nil
	}}
	exec := &fakeExecutor{result: gate.ExecResult{Output: "a.txt"}}
	rounds := 0
	prompter := &fakePrompter{decide: func(req ai.ConfirmRequest) ai.CommandConfirmation {
		rounds++
		if rounds == 1 {
			return ai.CommandConfirmation{Decision: ai.DecisionExplain}
		}
		return ai.CommandConfirmation{Decision: ai.DecisionApprove}
	}}
	wf, _ := newWorkflow(t, ai.PolicySuggest, caller, exec, prompter)

	require.NoError(t, wf.Message("list"))
	wf.Wait()

	require.Len(t, prompter.confirms, 2)
	assert.Equal(t, "It lists files.", prompter.confirms[1].Explanation)
	assert.Equal(t, 1, exec.count())
}

func TestHostToolRunner(t *testing.T) {
	caller := &scriptedCaller{}
	exec := &fakeExecutor{result: gate.ExecResult{Output: "a.txt"}}
	_, bridge := newWorkflow(t, ai.PolicyAutoEdit, caller, exec, nil)

	result := bridge.Tools().Execute(context.Background(), shellCall("host_1", "ls"))
	assert.Equal(t, "a.txt", result.Content)
	assert.Equal(t, "host_1", result.ToolCallID)
	assert.Equal(t, 1, exec.count())
}

func TestCloseOrphans(t *testing.T) {
	call := ai.ToolCall{ID: "c1", Name: ai.ToolShell}
	answered := ai.ToolCall{ID: "c2", Name: ai.ToolShell}
	transcript := []ai.Message{
		ai.NewUserMessage("hi"),
		{Role: ai.RoleAssistant, Parts: []ai.ContentPart{ai.NewToolCallPart(answered), ai.NewToolCallPart(call)}},
		ai.NewToolResultMessage(ai.ToolResult{ToolCallID: "c2", Content: "ok"}),
		ai.NewUIMessage("note"),
		ai.NewUserMessage("next"),
	}

	out := closeOrphans(transcript)
	require.Len(t, out, 5)
	assert.Equal(t, ai.RoleTool, out[3].Role)
	results := out[3].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "next", out[4].Text())
}
