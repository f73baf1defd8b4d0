// Package openai implements [tandem.ChatProvider] on the OpenAI Chat
// Completions API. Each tool result becomes its own tool message.
package openai
