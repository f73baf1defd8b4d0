package prompt

import (
	"context"
	"testing"
	"time"

	ai "github.com/spetersoncode/tandem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answering returns a broker whose host answers every request with fn.
func answering(fn func(req Request) Response, opts ...Option) *Broker {
	var b *Broker
	opts = append(opts, WithOnSubmit(func(req Request) {
		resp := fn(req)
		resp.RequestID = req.ID
		go func() { _ = b.Respond(resp) }()
	}))
	b = NewBroker(opts...)
	return b
}

func TestBroker_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("approve", func(t *testing.T) {
		var seen Request
		b := answering(func(req Request) Response {
			seen = req
			return Response{Decision: ai.DecisionApprove}
		})
		got, err := b.Confirm(ctx, ai.ConfirmRequest{ToolCallID: "call-1", Command: []string{"rm", "x"}})
		require.NoError(t, err)
		assert.Equal(t, ai.DecisionApprove, got.Decision)
		assert.Equal(t, "call-1", seen.ID)
		assert.Equal(t, KindConfirm, seen.Kind)
		assert.Equal(t, "rm x", seen.Message)
		assert.False(t, b.HasPending())
	})

	t.Run("deny carries custom message", func(t *testing.T) {
		b := answering(func(Request) Response {
			return Response{Decision: ai.DecisionDeny, CustomDenyMessage: "use git rm"}
		})
		got, err := b.Confirm(ctx, ai.ConfirmRequest{Command: []string{"rm", "x"}})
		require.NoError(t, err)
		assert.Equal(t, ai.DecisionDeny, got.Decision)
		assert.Equal(t, "use git rm", got.CustomDenyMessage)
	})

	t.Run("dismissed prompt denies", func(t *testing.T) {
		b := answering(func(Request) Response { return Response{Cancelled: true} })
		got, err := b.Confirm(ctx, ai.ConfirmRequest{Command: []string{"ls"}})
		require.NoError(t, err)
		assert.Equal(t, ai.DecisionDeny, got.Decision)
	})

	t.Run("timeout returns configured default", func(t *testing.T) {
		b := NewBroker(WithTimeout(10*time.Millisecond), WithConfirmDefault(ai.DecisionNoContinue))
		got, err := b.Confirm(ctx, ai.ConfirmRequest{Command: []string{"ls"}})
		require.NoError(t, err)
		assert.Equal(t, ai.DecisionNoContinue, got.Decision)
	})

	t.Run("context cancel is an error", func(t *testing.T) {
		b := NewBroker()
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := b.Confirm(cctx, ai.ConfirmRequest{Command: []string{"ls"}})
		assert.ErrorIs(t, err, ErrCancelled)
		assert.False(t, b.HasPending())
	})

	t.Run("explanation and preview are shown", func(t *testing.T) {
		var seen Request
		b := answering(func(req Request) Response {
			seen = req
			return Response{Decision: ai.DecisionApprove}
		})
		_, err := b.Confirm(ctx, ai.ConfirmRequest{
			Patch:       &ai.Patch{Files: []ai.FileChange{{Path: "a.go", Op: ai.PatchUpdate}}},
			Preview:     "-old\n+new",
			Explanation: "it edits a.go",
		})
		require.NoError(t, err)
		assert.Equal(t, "Apply patch?", seen.Title)
		assert.Contains(t, seen.Message, "a.go")
		assert.Contains(t, seen.Message, "+new")
		assert.Contains(t, seen.Message, "it edits a.go")
	})
}

func TestBroker_SelectInput(t *testing.T) {
	ctx := context.Background()

	t.Run("select returns chosen value", func(t *testing.T) {
		b := answering(func(req Request) Response {
			return Response{Value: req.Options[1]}
		})
		got, err := b.Select(ctx, "Pick", []string{"a", "b"}, "a")
		require.NoError(t, err)
		assert.Equal(t, "b", got)
	})

	t.Run("select timeout returns default", func(t *testing.T) {
		b := NewBroker(WithTimeout(10 * time.Millisecond))
		got, err := b.Select(ctx, "Pick", []string{"a", "b"}, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", got)
	})

	t.Run("input dismissed returns empty", func(t *testing.T) {
		b := answering(func(Request) Response { return Response{Cancelled: true, Value: "ignored"} })
		got, err := b.Input(ctx, "Name?", "", "bob")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestBroker_Respond(t *testing.T) {
	b := NewBroker()
	err := b.Respond(Response{RequestID: "nope"})
	assert.ErrorContains(t, err, "no pending prompt")
}
