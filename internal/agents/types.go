package agents

import (
	"folioagent/internal/tools/portfolio"
)

// HistoryEntry is one prior message of the conversation
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one user turn
type ChatRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversationHistory,omitempty"`
	AccountID           string         `json:"accountId,omitempty"`
	Timeframe           string         `json:"timeframe,omitempty"`
	Mode                string         `json:"mode,omitempty"`
}

// TraceRow records one tool invocation. Rows keep invocation order.
type TraceRow struct {
	Tool  string `json:"tool"`
	OK    bool   `json:"ok"`
	Ms    int64  `json:"ms"`
	Error string `json:"error,omitempty"`
}

// ResponseData echoes the structured portfolio facts behind an answer
type ResponseData struct {
	ValuationMethod        portfolio.ValuationMethod `json:"valuationMethod"`
	AsOf                   *string                   `json:"asOf"`
	TotalValue             *portfolio.Money          `json:"totalValue"`
	AllocationBySymbol     []portfolio.AllocationRow `json:"allocationBySymbol"`
	AllocationByAssetClass []portfolio.AllocationRow `json:"allocationByAssetClass"`
}

// LoopMeta describes how the loop ran
type LoopMeta struct {
	Iterations int    `json:"iterations"`
	LLMCalls   int    `json:"llmCalls"`
	ToolCalls  int    `json:"toolCalls"`
	ElapsedMs  int64  `json:"elapsedMs"`
	StopReason string `json:"stopReason"`
}

// ChatResponse is the assembled result of a turn. Every failure branch still fills Answer.
type ChatResponse struct {
	TurnID     string       `json:"turnId"`
	Answer     string       `json:"answer"`
	Data       ResponseData `json:"data"`
	ToolTrace  []TraceRow   `json:"toolTrace"`
	Confidence float64      `json:"confidence"`
	Warnings   []string     `json:"warnings"`
	LoopMeta   LoopMeta     `json:"loopMeta"`
}

// Stop reasons reported in LoopMeta besides the provider's own
const (
	StopNotConfigured = "not_configured"
	StopMaxToolRounds = "max_tool_rounds"
	StopError         = "error"
)

func defaultData() ResponseData {
	return ResponseData{
		ValuationMethod:        portfolio.ValuationMarket,
		AllocationBySymbol:     []portfolio.AllocationRow{},
		AllocationByAssetClass: []portfolio.AllocationRow{},
	}
}
