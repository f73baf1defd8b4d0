package agui

import (
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/prompt"
)

func TestRunAgentInput_Prepare(t *testing.T) {
	t.Run("no messages", func(t *testing.T) {
		_, err := (&RunAgentInput{}).Prepare()
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("latest user text", func(t *testing.T) {
		in := &RunAgentInput{ThreadID: "t1", Messages: []events.Message{
			{ID: "1", Role: RoleUser, Content: ptr("first")},
			{ID: "2", Role: RoleAssistant, Content: ptr("answer")},
			{ID: "3", Role: RoleUser, Content: ptr("second")},
		}}
		prepared, err := in.Prepare()
		require.NoError(t, err)
		assert.Equal(t, "t1", prepared.ThreadID)
		text, err := prepared.LatestUserText()
		require.NoError(t, err)
		assert.Equal(t, "second", text)
	})

	t.Run("no user message", func(t *testing.T) {
		prepared, err := (&RunAgentInput{Messages: []events.Message{{Role: RoleAssistant, Content: ptr("x")}}}).Prepare()
		require.NoError(t, err)
		_, err = prepared.LatestUserText()
		assert.ErrorIs(t, err, ErrNoUserMessage)
	})
}

func TestDecodeState(t *testing.T) {
	type clientState struct {
		ApprovalPolicy string `json:"approvalPolicy"`
	}

	st, err := DecodeState[clientState](&PreparedInput{State: map[string]any{"approvalPolicy": "full-auto"}})
	require.NoError(t, err)
	assert.Equal(t, "full-auto", st.ApprovalPolicy)

	st, err = DecodeState[clientState](&PreparedInput{})
	require.NoError(t, err)
	assert.Empty(t, st.ApprovalPolicy)
}

func TestParseInput(t *testing.T) {
	t.Run("prompt response", func(t *testing.T) {
		in, err := ParseInput([]byte(`{"requestId":"req-1","decision":"approve"}`))
		require.NoError(t, err)
		require.NotNil(t, in.Response)
		assert.Nil(t, in.Run)
		assert.Equal(t, "req-1", in.Response.RequestID)
		assert.Equal(t, ai.DecisionApprove, in.Response.Decision)
	})

	t.Run("run input", func(t *testing.T) {
		in, err := ParseInput([]byte(`{"thread_id":"t","run_id":"r","messages":[{"id":"1","role":"user","content":"hi"}]}`))
		require.NoError(t, err)
		require.NotNil(t, in.Run)
		text, err := in.Run.LatestUserText()
		require.NoError(t, err)
		assert.Equal(t, "hi", text)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseInput([]byte(`{nope`))
		assert.Error(t, err)
	})

	t.Run("empty run", func(t *testing.T) {
		_, err := ParseInput([]byte(`{"messages":[]}`))
		assert.ErrorIs(t, err, ErrNoMessages)
	})
}

func TestPromptRequest(t *testing.T) {
	ev := PromptRequest(prompt.Request{ID: "req-1", Kind: prompt.KindConfirm, Message: "Run ls?"})
	assert.Equal(t, events.EventTypeCustom, ev.Type())
}
