// Package model defines how the workflow talks to a language model.
//
// A [Caller] takes the assembled context and the tool catalog and returns
// the messages the model produced. [ProviderCaller] implements it on top of
// any [tandem.ChatProvider], retrying transient failures and recording
// usage. The catalog in this package maps model IDs to their provider and
// pricing so hosts can pick a provider from a model name and report cost.
//
//	p := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"))
//	caller := model.NewProviderCaller(p, session, model.WithRetry(retry.DefaultConfig()))
//	res, err := caller.Call(ctx, model.Request{Messages: msgs, Tools: ai.NativeTools()})
package model
