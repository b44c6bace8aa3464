package agents

import (
	"strings"

	"folioagent/internal/adapters/ai"
)

// buildMessages turns prior history plus the new user message into provider messages.
// Roles other than user and assistant are skipped. When the history exceeds budget
// (estimated tokens) the oldest entries are dropped first, and the replay always
// starts with a user message.
func buildMessages(history []HistoryEntry, message string, budget int) []ai.Message {
	kept := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		role := strings.ToLower(strings.TrimSpace(h.Role))
		if (role != string(ai.RoleUser) && role != string(ai.RoleAssistant)) || strings.TrimSpace(h.Content) == "" {
			continue
		}
		kept = append(kept, HistoryEntry{Role: role, Content: h.Content})
	}

	used := estimateTokens(message)
	start := len(kept)
	for start > 0 {
		cost := estimateTokens(kept[start-1].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start--
	}
	kept = kept[start:]
	for len(kept) > 0 && kept[0].Role != string(ai.RoleUser) {
		kept = kept[1:]
	}

	messages := make([]ai.Message, 0, len(kept)+1)
	for _, h := range kept {
		if h.Role == string(ai.RoleAssistant) {
			messages = append(messages, ai.AssistantText(h.Content))
			continue
		}
		messages = append(messages, ai.UserText(h.Content))
	}
	return append(messages, ai.UserText(message))
}

// estimateTokens is a rough 4-characters-per-token estimate
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}
