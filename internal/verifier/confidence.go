package verifier

import "github.com/shopspring/decimal"

var (
	confidenceAllFailed = decimal.RequireFromString("0.1")
	confidenceDegraded  = decimal.RequireFromString("0.4")
	confidencePartial   = decimal.RequireFromString("0.7")
	confidenceFull      = decimal.NewFromInt(1)
)

// Signals summarise a turn's tool outcomes for confidence scoring
type Signals struct {
	HasErrors        bool
	PriceDataMissing bool
	ToolsSucceeded   int
	ToolsFailed      int
	HasHoldings      bool
}

// BaseConfidence evaluates the decision table in priority order
func BaseConfidence(s Signals) decimal.Decimal {
	switch {
	case s.ToolsFailed > 0 && s.ToolsSucceeded == 0:
		return confidenceAllFailed
	case !s.HasHoldings:
		return confidenceDegraded
	case s.ToolsFailed > 0:
		return confidenceDegraded
	case s.PriceDataMissing || s.HasErrors:
		return confidencePartial
	default:
		return confidenceFull
	}
}

// ComputeConfidence is max(0, base - penalty)
func ComputeConfidence(s Signals, penalty decimal.Decimal) float64 {
	c := BaseConfidence(s).Sub(penalty)
	if c.IsNegative() {
		return 0
	}
	f, _ := c.Float64()
	return f
}
