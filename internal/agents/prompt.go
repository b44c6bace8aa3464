package agents

import (
	"strings"
	"time"

	"folioagent/pkg/templates"
)

const systemTemplate = "agent/system"

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"zh": "Chinese",
}

type promptData struct {
	Today        string
	BaseCurrency string
	LanguageName string
	AccountID    string
	Timeframe    string
}

// SystemPrompt renders the system prompt for one turn
func SystemPrompt(baseCurrency, language string, req ChatRequest, now time.Time) (string, error) {
	return templates.Get().Render(systemTemplate, promptData{
		Today:        now.UTC().Format("2006-01-02"),
		BaseCurrency: baseCurrency,
		LanguageName: languageName(language),
		AccountID:    strings.TrimSpace(req.AccountID),
		Timeframe:    strings.TrimSpace(req.Timeframe),
	})
}

func languageName(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	if code == "" {
		return "English"
	}
	return code
}
