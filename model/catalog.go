package model

import (
	"strings"

	ai "github.com/spetersoncode/tandem"
)

// Pricing is the price per million tokens in USD.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the cost of usage in USD.
func (p Pricing) Cost(u ai.Usage) float64 {
	return float64(u.InputTokens)/1_000_000*p.InputPerMillion +
		float64(u.OutputTokens)/1_000_000*p.OutputPerMillion
}

// Info describes a known chat model.
type Info struct {
	ID       string
	Provider ai.Provider
	Pricing  Pricing
}

// Pricing last verified December 2025.
var catalog = []Info{
	{ID: "claude-opus-4-5", Provider: ai.ProviderAnthropic, Pricing: Pricing{5.00, 25.00}},
	{ID: "claude-sonnet-4-5", Provider: ai.ProviderAnthropic, Pricing: Pricing{3.00, 15.00}},
	{ID: "claude-haiku-4-5", Provider: ai.ProviderAnthropic, Pricing: Pricing{1.00, 5.00}},

	{ID: "gpt-5.2", Provider: ai.ProviderOpenAI, Pricing: Pricing{1.75, 14.00}},
	{ID: "gpt-5.1", Provider: ai.ProviderOpenAI, Pricing: Pricing{1.25, 10.00}},
	{ID: "gpt-5.1-codex", Provider: ai.ProviderOpenAI, Pricing: Pricing{1.25, 10.00}},
	{ID: "gpt-5-mini", Provider: ai.ProviderOpenAI, Pricing: Pricing{0.25, 1.00}},
	{ID: "o4-mini", Provider: ai.ProviderOpenAI, Pricing: Pricing{0.50, 2.00}},

	{ID: "gemini-2.5-pro", Provider: ai.ProviderGoogle, Pricing: Pricing{1.25, 10.00}},
	{ID: "gemini-2.5-flash", Provider: ai.ProviderGoogle, Pricing: Pricing{0.15, 0.60}},
	{ID: "gemini-2.5-flash-lite", Provider: ai.ProviderGoogle, Pricing: Pricing{0.075, 0.30}},
}

var defaults = map[ai.Provider]string{
	ai.ProviderAnthropic: "claude-sonnet-4-5",
	ai.ProviderOpenAI:    "gpt-5.1",
	ai.ProviderGoogle:    "gemini-2.5-flash",
}

// Lookup finds a model by ID. Pinned IDs such as
// "claude-sonnet-4-5-20250929" match their alias.
func Lookup(id string) (Info, bool) {
	var best Info
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
		if strings.HasPrefix(id, m.ID+"-") && len(m.ID) > len(best.ID) {
			best = m
		}
	}
	if best.ID != "" {
		best.ID = id
		return best, true
	}
	return Info{}, false
}

// Default returns the default model for provider.
func Default(p ai.Provider) (Info, bool) {
	id, ok := defaults[p]
	if !ok {
		return Info{}, false
	}
	return Lookup(id)
}

// ProviderFor guesses the provider of a model ID, falling back to name
// prefixes for models missing from the catalog.
func ProviderFor(id string) (ai.Provider, bool) {
	if m, ok := Lookup(id); ok {
		return m.Provider, true
	}
	switch {
	case strings.HasPrefix(id, "claude"):
		return ai.ProviderAnthropic, true
	case strings.HasPrefix(id, "gpt"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return ai.ProviderOpenAI, true
	case strings.HasPrefix(id, "gemini"):
		return ai.ProviderGoogle, true
	}
	return "", false
}
