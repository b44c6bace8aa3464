package agents

import (
	"time"

	"folioagent/internal/audit"
	"folioagent/internal/tools/portfolio"
	"folioagent/internal/verifier"
)

// turn accumulates per-request state. It is owned by a single goroutine.
type turn struct {
	id      string
	userID  string
	started time.Time

	trace   []TraceRow
	results map[string]interface{}

	iterations int
	llmCalls   int
	toolRounds int
	stopReason string
}

func newTurn(id, userID string, started time.Time) *turn {
	return &turn{
		id:      id,
		userID:  userID,
		started: started,
		trace:   []TraceRow{},
		results: map[string]interface{}{},
	}
}

// record appends a trace row. A successful result is stored by tool name; a later
// call to the same tool replaces the earlier result.
func (t *turn) record(row TraceRow, result interface{}) {
	t.trace = append(t.trace, row)
	if row.OK {
		t.results[row.Tool] = result
	}
}

func (t *turn) snapshot() *portfolio.SnapshotResult {
	s, _ := t.results[portfolio.ToolSnapshot].(*portfolio.SnapshotResult)
	return s
}

func (t *turn) signals() verifier.Signals {
	s := verifier.Signals{HasHoldings: true}
	for _, row := range t.trace {
		if row.OK {
			s.ToolsSucceeded++
		} else {
			s.ToolsFailed++
		}
	}

	for _, r := range t.results {
		if p, ok := r.(interface{ PriceDataMissing() bool }); ok && p.PriceDataMissing() {
			s.PriceDataMissing = true
		}
	}

	if snap := t.snapshot(); snap != nil {
		s.HasErrors = snap.ProviderErrors()
		s.HasHoldings = snap.HoldingCount() > 0
	}
	return s
}

func (t *turn) data() ResponseData {
	d := defaultData()
	snap := t.snapshot()
	if snap == nil {
		return d
	}

	d.ValuationMethod = snap.ValuationMethod
	d.AsOf = snap.AsOf
	total := snap.TotalValue
	d.TotalValue = &total
	if snap.AllocationBySymbol != nil {
		d.AllocationBySymbol = snap.AllocationBySymbol
	}
	if snap.AllocationByAssetClass != nil {
		d.AllocationByAssetClass = snap.AllocationByAssetClass
	}
	return d
}

func (t *turn) meta(now time.Time) LoopMeta {
	return LoopMeta{
		Iterations: t.iterations,
		LLMCalls:   t.llmCalls,
		ToolCalls:  len(t.trace),
		ElapsedMs:  now.Sub(t.started).Milliseconds(),
		StopReason: t.stopReason,
	}
}

func (t *turn) audit(confidence float64, at time.Time) audit.Turn {
	calls := make([]audit.ToolCall, 0, len(t.trace))
	for _, row := range t.trace {
		calls = append(calls, audit.ToolCall{
			Tool:       row.Tool,
			OK:         row.OK,
			DurationMs: row.Ms,
			Error:      row.Error,
		})
	}
	return audit.Turn{
		TurnID:     t.id,
		UserID:     t.userID,
		Confidence: confidence,
		Calls:      calls,
		At:         at,
	}
}
