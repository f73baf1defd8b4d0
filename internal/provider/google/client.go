package google

import (
	"context"

	ai "github.com/spetersoncode/tandem"
	"google.golang.org/genai"
)

// DefaultModel is used when neither the client nor the request names one.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Google GenAI SDK to implement ai.ChatProvider.
type Client struct {
	client *genai.Client
	model  string
}

// ClientOption configures the Google client.
type ClientOption func(*Client)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// New creates a Gemini API client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	c := &Client{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	options := ai.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	if len(options.Tools) > 0 {
		config.Tools = convertTools(options.Tools)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, ai.NewUserInputError("google request failed", 0, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)})
	}

	out := &ai.Response{Message: ai.Message{Role: ai.RoleAssistant}, FinishReason: ai.FinishUnknown}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.Message = convertResponse(cand.Content)
		out.FinishReason = finishReason(cand.FinishReason, len(out.Message.ToolCalls()) > 0)
	}
	if resp.UsageMetadata != nil {
		out.Usage = ai.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// finishReason maps a Gemini finish reason. Gemini reports STOP even when
// the candidate ends in function calls.
func finishReason(reason genai.FinishReason, hasCalls bool) ai.FinishReason {
	if hasCalls {
		return ai.FinishToolCalls
	}
	switch reason {
	case genai.FinishReasonStop:
		return ai.FinishStop
	case genai.FinishReasonMaxTokens:
		return ai.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return ai.FinishContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return ai.FinishError
	default:
		return ai.FinishUnknown
	}
}

var _ ai.ChatProvider = (*Client)(nil)
