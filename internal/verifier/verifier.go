package verifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// SnapshotTool is the results-map key the allocation and valuation checks read
const SnapshotTool = "getPortfolioSnapshot"

// Check names, also used as metric labels
const (
	CheckAdvice         = "advice"
	CheckAllocationSum  = "allocation_sum"
	CheckValuationLabel = "valuation_label"
)

var (
	AdvicePenalty         = decimal.RequireFromString("0.2")
	AllocationSumPenalty  = decimal.RequireFromString("0.1")
	ValuationLabelPenalty = decimal.RequireFromString("0.1")

	// AllocationTolerance is the allowed deviation of the allocation sum from 100
	AllocationTolerance = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

var advicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou\s+should\s+(buy|sell|invest)\b`),
	regexp.MustCompile(`(?i)\bi\s+(would\s+)?recommend\s+(buying|selling)\b`),
	regexp.MustCompile(`(?i)\bguaranteed\s+(returns?|profits?|gains?)\b`),
	regexp.MustCompile(`(?i)\brisk[-\s]free\s+returns?\b`),
	regexp.MustCompile(`(?i)\bdefinitely\s+(buy|sell)\b`),
	regexp.MustCompile(`(?i)\byou\s+(must|need\s+to)\s+(buy|sell)\b`),
}

var costBasisPhrases = []string{
	"cost basis",
	"cost-basis",
	"purchase price",
	"book value",
	"missing price",
	"not reflect current market",
}

// SnapshotView is the part of a snapshot tool result the verifier inspects
type SnapshotView interface {
	AllocationPercents() []decimal.Decimal
	PriceDataMissing() bool
}

// Finding is one verifier warning
type Finding struct {
	Check   string
	Message string
	Penalty decimal.Decimal
}

// Result is the outcome of Verify
type Result struct {
	Findings []Finding
	Penalty  decimal.Decimal
}

// Warnings returns the human-readable finding messages in check order
func (r Result) Warnings() []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.Message)
	}
	return out
}

func (r *Result) add(check, message string, penalty decimal.Decimal) {
	r.Findings = append(r.Findings, Finding{Check: check, Message: message, Penalty: penalty})
	r.Penalty = r.Penalty.Add(penalty)
}

// Verify runs the advice, allocation-sum and valuation-label checks over an answer.
// Penalties accumulate across checks.
func Verify(answer string, toolResults map[string]interface{}) Result {
	res := Result{Penalty: decimal.Zero}

	if ContainsAdvice(answer) {
		res.add(CheckAdvice,
			"The answer may contain financial advice; it should describe the portfolio rather than recommend trades.",
			AdvicePenalty)
	}

	snapshot, ok := toolResults[SnapshotTool].(SnapshotView)
	if !ok || snapshot == nil {
		return res
	}

	if sum, deviation, ok := allocationDeviation(snapshot.AllocationPercents()); ok && deviation.GreaterThan(AllocationTolerance) {
		res.add(CheckAllocationSum,
			fmt.Sprintf("Allocation percentages sum to %s%% (deviation %s from 100%%).", sum.String(), deviation.String()),
			AllocationSumPenalty)
	}

	if snapshot.PriceDataMissing() && !DisclosesCostBasis(answer) {
		res.add(CheckValuationLabel,
			"Some prices are missing but the answer does not say that values are based on cost basis.",
			ValuationLabelPenalty)
	}

	return res
}

// ContainsAdvice reports whether answer matches any prohibited advisory phrasing
func ContainsAdvice(answer string) bool {
	for _, re := range advicePatterns {
		if re.MatchString(answer) {
			return true
		}
	}
	return false
}

// DisclosesCostBasis reports whether answer mentions cost-basis valuation
func DisclosesCostBasis(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range costBasisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// allocationDeviation sums percents exactly. ok is false when there is nothing to check
// (no rows, or every row is zero because the portfolio has no value).
func allocationDeviation(percents []decimal.Decimal) (sum, deviation decimal.Decimal, ok bool) {
	sum = decimal.Zero
	for _, p := range percents {
		sum = sum.Add(p)
	}
	if sum.IsZero() {
		return sum, decimal.Zero, false
	}
	return sum, sum.Sub(hundred).Abs(), true
}
