package model

import (
	"context"
	"sync"
	"testing"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	errs     []error
	resp     *ai.Response
	received [][]ai.Message
	options  []*ai.Options
}

func (f *fakeProvider) Chat(_ context.Context, msgs []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msgs)
	f.options = append(f.options, ai.ApplyOptions(opts...))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	r := *f.resp
	return &r, nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestProviderCaller(t *testing.T) {
	call := ai.ToolCall{ID: "c1", Name: ai.ToolShell, Arguments: `{"cmd":["ls"]}`}
	p := &fakeProvider{resp: &ai.Response{
		Message:      ai.Message{Parts: []ai.ContentPart{ai.NewToolCallPart(call)}},
		FinishReason: ai.FinishToolCalls,
		Usage:        ai.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	session := ai.NewSession("claude-haiku-4-5", "", nil)
	c := NewProviderCaller(p, session, WithRetry(fastRetry()), WithChatOptions(ai.WithMaxTokens(100)))

	res, err := c.Call(context.Background(), Request{
		Messages:   []ai.Message{ai.NewUserMessage("hi"), ai.NewUIMessage("host only")},
		Tools:      ai.NativeTools(),
		Generation: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(7), res.Generation)
	assert.Equal(t, ai.FinishToolCalls, res.FinishReason)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, ai.RoleAssistant, res.Messages[0].Role)
	assert.Equal(t, []ai.ToolCall{call}, res.ToolCalls())

	require.Len(t, p.received, 1)
	assert.Len(t, p.received[0], 1, "ui messages are not sent")
	assert.Equal(t, "claude-haiku-4-5", p.options[0].Model)
	assert.Equal(t, 100, p.options[0].MaxTokens)
	assert.Len(t, p.options[0].Tools, 3)
	assert.Equal(t, ai.Usage{InputTokens: 10, OutputTokens: 5}, c.Usage())
}

func TestProviderCallerRetries(t *testing.T) {
	p := &fakeProvider{
		errs: []error{ai.NewTransientError("busy", 529, 0, nil)},
		resp: &ai.Response{Message: ai.NewAssistantMessage("ok"), FinishReason: ai.FinishStop},
	}
	c := NewProviderCaller(p, nil, WithRetry(fastRetry()))

	res, err := c.Call(context.Background(), Request{Messages: []ai.Message{ai.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Messages[0].Text())
	assert.Len(t, p.received, 2)
}

func TestProviderCallerPermanentError(t *testing.T) {
	perm := ai.NewPermanentError("bad key", 401, nil)
	p := &fakeProvider{errs: []error{perm}}
	c := NewProviderCaller(p, nil, WithRetry(fastRetry()))

	_, err := c.Call(context.Background(), Request{})
	assert.ErrorIs(t, err, perm)
	assert.Len(t, p.received, 1)
}

func TestCatalog(t *testing.T) {
	m, ok := Lookup("claude-sonnet-4-5-20250929")
	require.True(t, ok)
	assert.Equal(t, ai.ProviderAnthropic, m.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", m.ID)

	_, ok = Lookup("unknown")
	assert.False(t, ok)

	d, ok := Default(ai.ProviderGoogle)
	require.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash", d.ID)

	p, ok := ProviderFor("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, ai.ProviderOpenAI, p)

	cost := Pricing{InputPerMillion: 3, OutputPerMillion: 15}.Cost(ai.Usage{InputTokens: 1_000_000, OutputTokens: 100_000})
	assert.InDelta(t, 4.5, cost, 1e-9)
}
