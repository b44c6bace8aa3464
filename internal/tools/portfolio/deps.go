package portfolio

import (
	"time"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
	"folioagent/pkg/logger"
)

// Deps are the collaborators shared by the portfolio tools
type Deps struct {
	Provider     domain.Provider
	BaseCurrency string
	Log          *logger.Logger
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) currency(tc tools.ToolContext) string {
	if tc.BaseCurrency != "" {
		return tc.BaseCurrency
	}
	if d.BaseCurrency != "" {
		return d.BaseCurrency
	}
	return "USD"
}

func (d Deps) logger() *logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Get()
}

func query(r domain.DateRange, tc tools.ToolContext) domain.Query {
	return domain.Query{
		DateRange:       r,
		UserID:          tc.UserID,
		ImpersonationID: tc.ImpersonationID,
		AccessToken:     tc.AccessToken,
	}
}

func dateRangeSchema(description string) map[string]interface{} {
	ranges := domain.AllDateRanges()
	enum := make([]interface{}, 0, len(ranges))
	for _, r := range ranges {
		enum = append(enum, r.String())
	}
	return map[string]interface{}{
		"type":        "string",
		"enum":        enum,
		"description": description,
	}
}
