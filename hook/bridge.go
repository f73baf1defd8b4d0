// Package hook implements the state store and hook bridge between a workflow
// and its host.
//
// The bridge owns a plain State value. SetState is the only mutation
// primitive; every read returns a copy. Observers registered with Subscribe
// are called synchronously, in emission order, after each commit.
//
// Lock order for callers that hold their own lock across a commit (the
// workflow does, to check its generation) is: caller lock, then the bridge.
// Observers therefore must not call back into the bridge or the workflow;
// hand the event to another goroutine if a reaction is needed.
package hook

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/event"
	"github.com/spetersoncode/tandem/internal/store"
	"github.com/spetersoncode/tandem/prompt"
	"github.com/spetersoncode/tandem/safety"
)

// ToolRunner executes a tool call on behalf of the host.
type ToolRunner func(ctx context.Context, call ai.ToolCall) ai.ToolResult

// Options configures a Bridge.
type Options struct {
	// Policy is the initial approval policy. Defaults to Suggest.
	Policy ai.ApprovalPolicy
	// Messages seeds the transcript, e.g. from a saved session.
	Messages []ai.Message
	// Prompter answers confirmation, selection and input requests.
	// Defaults to a prompt.Broker with no host attached, so every request
	// resolves to its default after the broker timeout.
	Prompter prompt.Prompter
	// Classifier backs Approval().CanAutoApprove. Defaults to safety.New().
	Classifier     safety.Classifier
	Workdir        string
	WritableRoots  []string
	ExemptCommands []string
	Logger         *slog.Logger
}

type subscriber struct {
	id int
	fn event.Observer
}

// Bridge is the State Store / Hook Bridge.
type Bridge struct {
	mu    sync.RWMutex
	state State

	// emitMu serializes commit+delivery so observers see events in commit order.
	emitMu sync.Mutex
	subsMu sync.Mutex
	subs   []subscriber
	nextID int

	runnerMu sync.RWMutex
	runner   ToolRunner

	prompter       prompt.Prompter
	classifier     safety.Classifier
	workdir        string
	writableRoots  []string
	exemptCommands []string
	logger         *slog.Logger
}

// New creates a Bridge.
func New(opts Options) *Bridge {
	policy := opts.Policy
	if !policy.Valid() {
		policy = ai.PolicySuggest
	}
	p := opts.Prompter
	if p == nil {
		p = prompt.NewBroker()
	}
	c := opts.Classifier
	if c == nil {
		c = safety.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = ai.NopLogger()
	}
	msgs := store.Copy(opts.Messages)
	if msgs == nil {
		msgs = []ai.Message{}
	}
	return &Bridge{
		state: State{
			Messages:       msgs,
			Queue:          []string{},
			TaskList:       []Task{},
			ApprovalPolicy: policy,
		},
		prompter:       p,
		classifier:     c,
		workdir:        opts.Workdir,
		writableRoots:  slices.Clone(opts.WritableRoots),
		exemptCommands: slices.Clone(opts.ExemptCommands),
		logger:         logger,
	}
}

// State returns a copy of the current state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// SetState applies u and notifies observers with a StateChanged event.
// The new state is visible to State() before SetState returns.
func (b *Bridge) SetState(u Updater) {
	b.Commit(u)
}

// Commit applies u, then delivers StateChanged followed by events, all
// before any other commit can interleave. A nil u delivers events only.
func (b *Bridge) Commit(u Updater, events ...event.Event) State {
	return b.commit(func(s State) (State, bool, []event.Event) {
		if u == nil {
			return s, false, events
		}
		return u.apply(s), true, events
	})
}

// Update is Commit for callers whose events depend on the state being
// committed. fn receives a copy of the current state and returns the next
// state and the events to deliver after StateChanged.
func (b *Bridge) Update(fn func(prev State) (State, []event.Event)) State {
	return b.commit(func(s State) (State, bool, []event.Event) {
		next, events := fn(s)
		return next, true, events
	})
}

func (b *Bridge) commit(fn func(State) (State, bool, []event.Event)) State {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	next, changed, events := fn(b.state.Clone())
	if changed {
		b.state = next
	}
	snapshot := b.state.Clone()
	b.mu.Unlock()

	now := time.Now()
	if changed {
		b.deliver(event.Event{Type: event.StateChanged, Timestamp: now})
	}
	for _, e := range events {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		b.deliver(e)
	}
	return snapshot
}

// Emit delivers events without changing state.
func (b *Bridge) Emit(events ...event.Event) {
	b.Commit(nil, events...)
}

// Subscribe registers an observer. The returned function unregisters it.
func (b *Bridge) Subscribe(fn event.Observer) (unsubscribe func()) {
	b.subsMu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.subsMu.Unlock()

	return func() {
		b.subsMu.Lock()
		defer b.subsMu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscriber) bool { return s.id == id })
	}
}

func (b *Bridge) deliver(e event.Event) {
	b.subsMu.Lock()
	subs := slices.Clone(b.subs)
	b.subsMu.Unlock()

	for _, s := range subs {
		b.notify(s, e)
	}
}

func (b *Bridge) notify(s subscriber, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked", "event", e.Type, "panic", r)
		}
	}()
	s.fn(e)
}

// SetToolRunner installs the function backing Tools().Execute.
func (b *Bridge) SetToolRunner(r ToolRunner) {
	b.runnerMu.Lock()
	defer b.runnerMu.Unlock()
	b.runner = r
}

// Logger returns the bridge logger.
func (b *Bridge) Logger() *slog.Logger {
	return b.logger
}
