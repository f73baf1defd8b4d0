// Package anthropic implements [tandem.ChatProvider] on the Anthropic
// Messages API.
//
// Tool calls and tool results map onto tool_use and tool_result blocks.
// Consecutive tool messages are folded into a single user turn because
// the API requires every result for an assistant turn to arrive together.
// Thinking blocks in responses are kept as reasoning parts but are not sent
// back, since replaying them requires the signature the API issued.
//
//	p := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), anthropic.WithModel("claude-sonnet-4-5"))
//	resp, err := p.Chat(ctx, messages, ai.WithTools(ai.NativeTools()))
package anthropic
