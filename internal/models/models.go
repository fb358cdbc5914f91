// Package models lists the LLMs the playground can replay against.
package models

import "strings"

// DefaultModel is used when a call names no model or one that is unknown.
const DefaultModel = "gpt-4o-mini-2024-07-18"

// DefaultMaxTokens is the completion limit assumed for unknown models.
const DefaultMaxTokens = 16384

// Model describes one catalog entry.
type Model struct {
	ID        string   `json:"id"`
	Provider  Provider `json:"provider"`
	MaxTokens int      `json:"max_tokens"`
}

// Order matters: Resolve picks the first substring match, so dated IDs of a
// family precede their shorter siblings.
var catalog = []Model{
	{ID: "gpt-4o-2024-11-20", Provider: ProviderOpenAI, MaxTokens: 16384},
	{ID: "gpt-4o-2024-08-06", Provider: ProviderOpenAI, MaxTokens: 16384},
	{ID: "gpt-4o-mini-2024-07-18", Provider: ProviderOpenAI, MaxTokens: 16384},
	{ID: "gpt-4.1-2025-04-14", Provider: ProviderOpenAI, MaxTokens: 32768},
	{ID: "gpt-4.1-mini-2025-04-14", Provider: ProviderOpenAI, MaxTokens: 32768},
	{ID: "gpt-4.1-nano-2025-04-14", Provider: ProviderOpenAI, MaxTokens: 32768},
	{ID: "o3-2025-04-16", Provider: ProviderOpenAI, MaxTokens: 100000},
	{ID: "o3-mini-2025-01-31", Provider: ProviderOpenAI, MaxTokens: 100000},
	{ID: "o4-mini-2025-04-16", Provider: ProviderOpenAI, MaxTokens: 100000},
	{ID: "o1-2024-12-17", Provider: ProviderOpenAI, MaxTokens: 100000},
	{ID: "gpt-3.5-turbo-0125", Provider: ProviderOpenAI, MaxTokens: 4096},
	{ID: "claude-opus-4-20250514", Provider: ProviderAnthropic, MaxTokens: 32000},
	{ID: "claude-sonnet-4-20250514", Provider: ProviderAnthropic, MaxTokens: 64000},
	{ID: "claude-3-7-sonnet-20250219", Provider: ProviderAnthropic, MaxTokens: 64000},
	{ID: "claude-3-5-sonnet-20241022", Provider: ProviderAnthropic, MaxTokens: 8192},
	{ID: "claude-3-5-haiku-20241022", Provider: ProviderAnthropic, MaxTokens: 8192},
	{ID: "gemini-2.5-pro", Provider: ProviderGemini, MaxTokens: 65536},
	{ID: "gemini-2.5-flash", Provider: ProviderGemini, MaxTokens: 65536},
	{ID: "gemini-2.0-flash", Provider: ProviderGemini, MaxTokens: 8192},
	{ID: "gemini-1.5-pro", Provider: ProviderGemini, MaxTokens: 8192},
}

// Catalog returns a copy of all known models.
func Catalog() []Model {
	return append([]Model(nil), catalog...)
}

// Lookup finds a model by exact ID.
func Lookup(id string) (Model, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Resolve maps a recorded model name onto a catalog ID: an exact match wins,
// then the first ID contained in the name or containing it, else
// DefaultModel. "openai/gpt-4o-mini-2024-07-18" and "gpt-4o-mini" both land
// on "gpt-4o-mini-2024-07-18".
func Resolve(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel
	}
	if _, ok := Lookup(name); ok {
		return name
	}
	for _, candidate := range []string{name, normalizeModelID(name)} {
		if candidate == "" {
			continue
		}
		for _, m := range catalog {
			if strings.Contains(m.ID, candidate) || strings.Contains(candidate, m.ID) {
				return m.ID
			}
		}
	}
	return DefaultModel
}

// MaxTokens returns the completion limit of a model.
func MaxTokens(id string) int {
	if m, ok := Lookup(id); ok {
		return m.MaxTokens
	}
	return DefaultMaxTokens
}

// UsesMaxCompletionTokens reports whether the model takes
// max_completion_tokens instead of max_tokens.
func UsesMaxCompletionTokens(model string) bool {
	return strings.Contains(model, "o3") || strings.Contains(model, "o4")
}
