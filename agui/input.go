package agui

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/prompt"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
// Frontend tools and context are accepted but not used.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// PreparedInput contains validated and converted input.
type PreparedInput struct {
	ThreadID string
	RunID    string
	Messages []ai.Message
	State    any
}

// ErrNoMessages is returned when the input contains no messages.
var ErrNoMessages = errors.New("agui: no messages provided")

// ErrNoUserMessage is returned when the input has no user message to send.
var ErrNoUserMessage = errors.New("agui: no user message provided")

// Prepare validates the input and converts its messages.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	messages := ToMessages(r.Messages)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	return &PreparedInput{
		ThreadID: r.ThreadID,
		RunID:    r.RunID,
		Messages: messages,
		State:    r.State,
	}, nil
}

// LatestUserText returns the text of the last user message, which is what
// a frontend sends to start a run.
func (p *PreparedInput) LatestUserText() (string, error) {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == ai.RoleUser {
			return p.Messages[i].Text(), nil
		}
	}
	return "", ErrNoUserMessage
}

// DecodeState decodes the raw frontend state into T.
// Returns the zero value of T if State is nil.
func DecodeState[T any](input *PreparedInput) (T, error) {
	var result T
	if input.State == nil {
		return result, nil
	}

	data, err := json.Marshal(input.State)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Input is one line a frontend sends: either a new run or an answer to a
// pending prompt.
type Input struct {
	Run      *PreparedInput
	Response *prompt.Response
}

// ParseInput decodes a frontend line. Objects with a requestId are prompt
// responses; everything else must be a RunAgentInput.
func ParseInput(data []byte) (Input, error) {
	var probe struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Input{}, fmt.Errorf("agui: invalid input: %w", err)
	}

	if probe.RequestID != "" {
		var resp prompt.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Input{}, fmt.Errorf("agui: invalid prompt response: %w", err)
		}
		return Input{Response: &resp}, nil
	}

	var run RunAgentInput
	if err := json.Unmarshal(data, &run); err != nil {
		return Input{}, fmt.Errorf("agui: invalid run input: %w", err)
	}
	prepared, err := run.Prepare()
	if err != nil {
		return Input{}, err
	}
	return Input{Run: prepared}, nil
}

// PromptRequest returns a CUSTOM event announcing a pending prompt. Wire it
// to prompt.WithOnSubmit so frontends can answer with a prompt.Response.
func PromptRequest(req prompt.Request) events.Event {
	return custom(CustomPrompt, req)
}
