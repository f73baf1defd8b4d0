package model

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/internal/metrics"
	"github.com/spetersoncode/tandem/internal/retry"
)

// Request is one model call.
type Request struct {
	Messages []ai.Message
	Tools    []ai.Tool
	// Generation is echoed back in the Result so the caller can tell whether
	// the result is stale.
	Generation uint64
}

// Result is what the model produced for a Request.
type Result struct {
	Messages     []ai.Message
	FinishReason ai.FinishReason
	Usage        ai.Usage
	Generation   uint64
}

// ToolCalls returns every tool call in the result, in order.
func (r *Result) ToolCalls() []ai.ToolCall {
	var calls []ai.ToolCall
	for _, m := range r.Messages {
		calls = append(calls, m.ToolCalls()...)
	}
	return calls
}

// Caller calls a model. Implementations must return promptly once ctx is
// done.
type Caller interface {
	Call(ctx context.Context, req Request) (*Result, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req Request) (*Result, error)

func (f CallerFunc) Call(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// ProviderCaller implements Caller on a ChatProvider.
type ProviderCaller struct {
	provider ai.ChatProvider
	logger   *slog.Logger
	retry    retry.Config
	opts     []ai.Option
	metrics  *metrics.Metrics

	mu    sync.Mutex
	usage ai.Usage
}

// CallerOption configures a ProviderCaller.
type CallerOption func(*ProviderCaller)

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg retry.Config) CallerOption {
	return func(c *ProviderCaller) { c.retry = cfg }
}

// WithChatOptions adds request options sent with every call.
func WithChatOptions(opts ...ai.Option) CallerOption {
	return func(c *ProviderCaller) { c.opts = append(c.opts, opts...) }
}

// WithMetrics records model call outcomes and latency in m.
func WithMetrics(m *metrics.Metrics) CallerOption {
	return func(c *ProviderCaller) { c.metrics = m }
}

// NewProviderCaller creates a Caller for p. The session model, when set,
// is sent with every request.
func NewProviderCaller(p ai.ChatProvider, session *ai.Session, opts ...CallerOption) *ProviderCaller {
	c := &ProviderCaller{
		provider: p,
		logger:   session.Log(),
		retry:    retry.DefaultConfig(),
	}
	if session != nil && session.Model != "" {
		c.opts = append(c.opts, ai.WithModel(session.Model))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call implements Caller. UI messages are removed before the request.
func (c *ProviderCaller) Call(ctx context.Context, req Request) (*Result, error) {
	msgs := slices.DeleteFunc(slices.Clone(req.Messages), func(m ai.Message) bool {
		return m.Role == ai.RoleUI
	})
	opts := slices.Clone(c.opts)
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools))
	}

	start := time.Now()
	resp, err := retry.Do(ctx, c.retry, c.logRetry, func(ctx context.Context) (*ai.Response, error) {
		return c.provider.Chat(ctx, msgs, opts...)
	})
	if err != nil {
		c.metrics.ModelCall("error", time.Since(start))
		return nil, err
	}
	c.metrics.ModelCall("ok", time.Since(start))

	c.mu.Lock()
	c.usage.InputTokens += resp.Usage.InputTokens
	c.usage.OutputTokens += resp.Usage.OutputTokens
	c.mu.Unlock()

	c.logger.Debug("model call",
		"finish", resp.FinishReason,
		"tool_calls", len(resp.ToolCalls()),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start))

	resp.Message.Role = ai.RoleAssistant
	return &Result{
		Messages:     []ai.Message{resp.Message},
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Generation:   req.Generation,
	}, nil
}

// Usage returns the tokens used by every call so far.
func (c *ProviderCaller) Usage() ai.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *ProviderCaller) logRetry(e retry.Event) {
	switch e.Type {
	case retry.EventRetrying:
		c.logger.Warn("model call failed, retrying", "attempt", e.Attempt, "max_attempts", e.MaxAttempts, "delay", e.Delay)
	case retry.EventExhausted:
		c.logger.Warn("model call retries exhausted", "attempts", e.Attempt, "error", e.Error)
	}
}
