package agents

import (
	"strings"

	"folioagent/internal/adapters/config"
)

// Mode names accepted in ChatRequest.Mode
const (
	ModeFast = "fast"
	ModeDeep = "deep"
)

const defaultHistoryTokenBudget = 12000

// Config controls the orchestrator loop and the model call parameters
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64

	BaseCurrency string
	Language     string

	// MaxToolRounds is how many tool-execution rounds a default turn may run.
	// One round means exactly: plan call, tools, answer call.
	MaxToolRounds  int
	DeepToolRounds int

	// HistoryTokenBudget caps the estimated size of replayed conversation history
	HistoryTokenBudget int
}

// ConfigFrom maps process configuration onto the orchestrator config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Model:              cfg.AI.Model,
		MaxTokens:          cfg.AI.MaxTokens,
		Temperature:        cfg.AI.Temperature,
		BaseCurrency:       cfg.Agent.BaseCurrency,
		Language:           cfg.Agent.Language,
		MaxToolRounds:      cfg.Agent.MaxToolRounds,
		DeepToolRounds:     cfg.Agent.DeepToolRounds,
		HistoryTokenBudget: defaultHistoryTokenBudget,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds < 1 {
		c.MaxToolRounds = 1
	}
	if c.DeepToolRounds < c.MaxToolRounds {
		c.DeepToolRounds = c.MaxToolRounds
	}
	if c.BaseCurrency == "" {
		c.BaseCurrency = "USD"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.HistoryTokenBudget <= 0 {
		c.HistoryTokenBudget = defaultHistoryTokenBudget
	}
	return c
}

// rounds returns the tool-round bound for a request mode
func (c Config) rounds(mode string) int {
	if strings.EqualFold(strings.TrimSpace(mode), ModeDeep) {
		return c.DeepToolRounds
	}
	return c.MaxToolRounds
}
