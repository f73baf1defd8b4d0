package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ai "github.com/spetersoncode/tandem"
)

// DefaultTimeout is how long a request waits for the host.
const DefaultTimeout = 5 * time.Minute

// Broker manages pending prompts. The host learns about requests through the
// OnSubmit callback and answers them with Respond.
//
// Usage:
//
//	broker := prompt.NewBroker(prompt.WithOnSubmit(func(req prompt.Request) {
//	    requests <- req
//	}))
//	go func() {
//	    for resp := range answers {
//	        broker.Respond(resp)
//	    }
//	}()
type Broker struct {
	mu             sync.Mutex
	pending        map[string]chan Response
	timeout        time.Duration
	confirmDefault ai.ReviewDecision
	onSubmit       func(req Request)
}

var _ Prompter = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithTimeout sets the timeout for waiting on responses. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithConfirmDefault sets the decision used when a confirmation times out.
func WithConfirmDefault(d ai.ReviewDecision) Option {
	return func(b *Broker) {
		b.confirmDefault = d
	}
}

// WithOnSubmit sets the callback invoked when a request is submitted.
// It runs on the requesting goroutine and must not block.
func WithOnSubmit(fn func(req Request)) Option {
	return func(b *Broker) {
		b.onSubmit = fn
	}
}

// NewBroker creates a Broker. Confirmations that time out are denied.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		pending:        make(map[string]chan Response),
		timeout:        DefaultTimeout,
		confirmDefault: ai.DecisionDeny,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Respond routes a host response to the waiting request.
// Returns an error if there is no pending request for the given ID.
func (b *Broker) Respond(resp Response) error {
	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending prompt %q", resp.RequestID)
	}

	// Non-blocking send - a second answer to the same request is dropped
	select {
	case ch <- resp:
	default:
	}
	return nil
}

// PendingCount returns the number of pending requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HasPending returns true if there are any pending requests.
func (b *Broker) HasPending() bool {
	return b.PendingCount() > 0
}

// request registers req and waits. timedOut is true when the broker timeout
// fired before an answer.
func (b *Broker) request(ctx context.Context, req Request) (resp Response, timedOut bool, err error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	ch := make(chan Response, 1)

	b.mu.Lock()
	b.pending[req.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if b.onSubmit != nil {
		b.onSubmit(req)
	}

	waitCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		return resp, false, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return Response{}, false, ErrCancelled
		}
		return Response{}, true, nil
	}
}

// Confirm implements Prompter.
func (b *Broker) Confirm(ctx context.Context, req ai.ConfirmRequest) (ai.CommandConfirmation, error) {
	resp, timedOut, err := b.request(ctx, Request{
		ID:      req.ToolCallID,
		Kind:    KindConfirm,
		Title:   confirmTitle(req),
		Message: confirmMessage(req),
		Default: string(b.confirmDefault),
		Confirm: &req,
	})
	if err != nil {
		return ai.CommandConfirmation{}, err
	}
	if timedOut {
		return ai.CommandConfirmation{Decision: b.confirmDefault}, nil
	}
	if resp.Cancelled || resp.Decision == "" {
		return ai.CommandConfirmation{Decision: ai.DecisionDeny, CustomDenyMessage: resp.CustomDenyMessage}, nil
	}
	return ai.CommandConfirmation{
		Decision:          resp.Decision,
		Patch:             resp.Patch,
		CustomDenyMessage: resp.CustomDenyMessage,
	}, nil
}

// Select implements Prompter.
func (b *Broker) Select(ctx context.Context, question string, options []string, defaultOption string) (string, error) {
	resp, timedOut, err := b.request(ctx, Request{
		Kind:    KindSelect,
		Message: question,
		Options: options,
		Default: defaultOption,
	})
	if err != nil {
		return "", err
	}
	if timedOut {
		return defaultOption, nil
	}
	if resp.Cancelled {
		return "", nil
	}
	return resp.Value, nil
}

// Input implements Prompter.
func (b *Broker) Input(ctx context.Context, message, placeholder, defaultValue string) (string, error) {
	resp, timedOut, err := b.request(ctx, Request{
		Kind:        KindInput,
		Message:     message,
		Placeholder: placeholder,
		Default:     defaultValue,
	})
	if err != nil {
		return "", err
	}
	if timedOut {
		return defaultValue, nil
	}
	if resp.Cancelled {
		return "", nil
	}
	return resp.Value, nil
}

func confirmTitle(req ai.ConfirmRequest) string {
	if req.Patch != nil {
		return "Apply patch?"
	}
	return "Run command?"
}

func confirmMessage(req ai.ConfirmRequest) string {
	var sb strings.Builder
	if req.Patch != nil {
		sb.WriteString(strings.Join(req.Patch.Paths(), ", "))
		if req.Preview != "" {
			sb.WriteString("\n")
			sb.WriteString(req.Preview)
		}
	} else {
		sb.WriteString(strings.Join(req.Command, " "))
		if req.Workdir != "" {
			fmt.Fprintf(&sb, "  (in %s)", req.Workdir)
		}
	}
	if req.Explanation != "" {
		sb.WriteString("\n\n")
		sb.WriteString(req.Explanation)
	}
	return sb.String()
}
