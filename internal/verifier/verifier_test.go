package verifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshot struct {
	percents []string
	missing  bool
}

func (f *fakeSnapshot) AllocationPercents() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(f.percents))
	for _, p := range f.percents {
		out = append(out, decimal.RequireFromString(p))
	}
	return out
}

func (f *fakeSnapshot) PriceDataMissing() bool { return f.missing }

func TestContainsAdvice(t *testing.T) {
	flagged := []string{
		"Based on this, you should buy more VTI.",
		"You should SELL your bonds now.",
		"I recommend buying more bonds.",
		"I would recommend selling AAPL.",
		"This fund offers guaranteed returns.",
		"It is a risk-free return on capital.",
		"You must sell before earnings.",
		"you need to buy the dip",
		"You should definitely buy this.",
	}
	for _, s := range flagged {
		assert.True(t, ContainsAdvice(s), s)
	}

	clean := []string{
		"Your portfolio is 37.08% AAPL.",
		"Equities make up 76.26% of holdings; bonds are 23.74%.",
		"Many investors rebalance once a year.",
		"You bought AAPL in 2021.",
	}
	for _, s := range clean {
		assert.False(t, ContainsAdvice(s), s)
	}
}

func TestVerify_AdvicePenaltyAppliedOnce(t *testing.T) {
	res := Verify("You should buy AAPL. I recommend buying VTI. Guaranteed returns!", nil)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, CheckAdvice, res.Findings[0].Check)
	assert.Contains(t, res.Warnings()[0], "advice")
	assert.True(t, res.Penalty.Equal(AdvicePenalty))
}

func TestVerify_AllocationSum(t *testing.T) {
	tests := []struct {
		name     string
		percents []string
		warn     bool
	}{
		{name: "exact", percents: []string{"37.08", "39.18", "23.74"}},
		{name: "within tolerance", percents: []string{"33.33", "33.33", "33.33"}},
		{name: "boundary", percents: []string{"50", "49"}},
		{name: "over", percents: []string{"60", "50"}, warn: true},
		{name: "under", percents: []string{"40", "40"}, warn: true},
		{name: "empty portfolio", percents: nil},
		{name: "all zero", percents: []string{"0", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Verify("Your allocation.", map[string]interface{}{
				SnapshotTool: &fakeSnapshot{percents: tt.percents},
			})
			if !tt.warn {
				assert.Empty(t, res.Findings)
				assert.True(t, res.Penalty.IsZero())
				return
			}
			require.Len(t, res.Findings, 1)
			assert.Equal(t, CheckAllocationSum, res.Findings[0].Check)
			assert.True(t, res.Penalty.Equal(AllocationSumPenalty))
		})
	}
}

func TestVerify_AllocationSumMessage(t *testing.T) {
	res := Verify("ok", map[string]interface{}{
		SnapshotTool: &fakeSnapshot{percents: []string{"60", "50.5"}},
	})
	require.Len(t, res.Findings, 1)
	assert.Contains(t, res.Findings[0].Message, "110.5%")
	assert.Contains(t, res.Findings[0].Message, "deviation 10.5")
}

func TestVerify_ValuationLabel(t *testing.T) {
	snapshot := &fakeSnapshot{percents: []string{"100"}, missing: true}

	res := Verify("Your portfolio is 100% AAPL.", map[string]interface{}{SnapshotTool: snapshot})
	require.Len(t, res.Findings, 1)
	assert.Equal(t, CheckValuationLabel, res.Findings[0].Check)

	for _, answer := range []string{
		"Values use Cost Basis because prices are unavailable.",
		"Shown at purchase price.",
		"These figures may NOT REFLECT CURRENT MARKET prices.",
		"Reported at book value.",
	} {
		res = Verify(answer, map[string]interface{}{SnapshotTool: snapshot})
		assert.Empty(t, res.Findings, answer)
	}

	// not checked when prices are present
	res = Verify("Your portfolio is 100% AAPL.", map[string]interface{}{
		SnapshotTool: &fakeSnapshot{percents: []string{"100"}},
	})
	assert.Empty(t, res.Findings)
}

func TestVerify_SkipsSnapshotChecksWithoutSnapshot(t *testing.T) {
	res := Verify("Your return was 8%.", map[string]interface{}{
		"getPerformance": struct{}{},
	})
	assert.Empty(t, res.Findings)
}

func TestVerify_PenaltiesAccumulate(t *testing.T) {
	res := Verify("You should sell everything.", map[string]interface{}{
		SnapshotTool: &fakeSnapshot{percents: []string{"80"}, missing: true},
	})

	require.Len(t, res.Findings, 3)
	assert.Equal(t, "0.4", res.Penalty.String())
	assert.Equal(t, []string{CheckAdvice, CheckAllocationSum, CheckValuationLabel},
		[]string{res.Findings[0].Check, res.Findings[1].Check, res.Findings[2].Check})
}
