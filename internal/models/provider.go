package models

import "strings"

// Provider names the API family a model is served by.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// ProviderFor picks the API family for a model name. Routing prefixes such
// as "anthropic/" or "gemini/" are ignored; unknown names are assumed to be
// OpenAI compatible. It returns "" for an empty name.
func ProviderFor(model string) Provider {
	name := normalizeModelID(model)
	if name == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(name, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(name, "gemini"):
		return ProviderGemini
	}
	return ProviderOpenAI
}

// normalizeModelID lowercases a model name and strips routing prefixes and
// Vertex style "@version" suffixes.
func normalizeModelID(input string) string {
	name := strings.ToLower(strings.TrimSpace(input))
	if name == "" {
		return ""
	}
	name = strings.SplitN(name, "@", 2)[0]
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
