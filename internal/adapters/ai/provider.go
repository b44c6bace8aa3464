package ai

import "strings"

// ProviderName identifies an LLM vendor
type ProviderName string

const (
	ProviderNameAnthropic ProviderName = "anthropic"
	ProviderNameOpenAI    ProviderName = "openai"
)

func (p ProviderName) String() string {
	return string(p)
}

// ParseProviderName maps a configured provider value onto a known vendor.
// Matching ignores case and surrounding space; "claude" and "gpt" are accepted aliases.
func ParseProviderName(name string) (ProviderName, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude":
		return ProviderNameAnthropic, true
	case "openai", "gpt":
		return ProviderNameOpenAI, true
	default:
		return "", false
	}
}

// Models sent when a request names none
const (
	defaultClaudeModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel = "gpt-4.1"
)

// DefaultModel returns the model the vendor's adapter uses when AI_MODEL is unset
func DefaultModel(name ProviderName) string {
	if name == ProviderNameOpenAI {
		return defaultOpenAIModel
	}
	return defaultClaudeModel
}

// Wire constants shared by the HTTP adapters
const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
	maxErrorBody     = 2048
)
