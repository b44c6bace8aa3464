package portfolio

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
	"folioagent/pkg/logger"
)

func change(typ ChangeType, symbol, amount string) Change {
	return Change{Type: typ, Symbol: symbol, Amount: decimal.RequireFromString(amount)}
}

func rowFor(t *testing.T, res *SimulationResult, symbol string) SimulatedRow {
	t.Helper()
	for _, r := range res.Allocations {
		if r.Symbol == symbol {
			return r
		}
	}
	t.Fatalf("no row for %s", symbol)
	return SimulatedRow{}
}

func TestSimulate_BuyAndSell(t *testing.T) {
	res := Simulate(threeHoldings(), []Change{
		change(ChangeBuy, "bnd", "1000"),
		change(ChangeSell, "AAPL", "708"),
		change(ChangeBuy, "GLD", "500"),
	}, "USD")

	assert.Equal(t, "10000", res.CurrentTotal.Amount.String())
	assert.Equal(t, "10792", res.SimulatedTotal.Amount.String())
	assert.Empty(t, res.Notes)

	assert.Equal(t, "3374", rowFor(t, res, "BND").SimulatedValue.String())
	assert.Equal(t, "3000", rowFor(t, res, "AAPL").SimulatedValue.String())
	gld := rowFor(t, res, "GLD")
	assert.True(t, gld.CurrentValue.IsZero())
	assert.Equal(t, "4.63", gld.SimulatedPercent.StringFixed(2))

	for i := 1; i < len(res.Allocations); i++ {
		assert.True(t, res.Allocations[i-1].SimulatedPercent.GreaterThanOrEqual(res.Allocations[i].SimulatedPercent),
			"rows sorted by simulated percent descending")
	}
}

func TestSimulate_OversellClampsToZero(t *testing.T) {
	res := Simulate(threeHoldings(), []Change{change(ChangeSell, "AAPL", "50000")}, "USD")

	aapl := rowFor(t, res, "AAPL")
	assert.True(t, aapl.SimulatedValue.IsZero())
	assert.True(t, aapl.SimulatedPercent.IsZero())
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "AAPL")

	// total drops by the pre-clamp value, not by the requested amount
	assert.Equal(t, "6292", res.SimulatedTotal.Amount.String())
}

func TestSimulate_OrderMatters(t *testing.T) {
	sellFirst := Simulate(threeHoldings(), []Change{
		change(ChangeSell, "NEW", "100"),
		change(ChangeBuy, "NEW", "100"),
	}, "USD")
	assert.Equal(t, "100", rowFor(t, sellFirst, "NEW").SimulatedValue.String())
	assert.Len(t, sellFirst.Notes, 1)

	buyFirst := Simulate(threeHoldings(), []Change{
		change(ChangeBuy, "NEW", "100"),
		change(ChangeSell, "NEW", "100"),
	}, "USD")
	assert.True(t, rowFor(t, buyFirst, "NEW").SimulatedValue.IsZero())
	assert.Empty(t, buyFirst.Notes)
}

func TestSimulateTool_ReadOnly(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDetails", mock.Anything, mock.MatchedBy(func(q domain.Query) bool {
		return q.DateRange == domain.DateRangeMax
	})).Return(threeHoldings(), nil).Once()

	tool := NewSimulateTool(Deps{Provider: provider, Log: logger.Nop()})
	out, err := tool.Execute(context.Background(),
		json.RawMessage(`{"changes":[{"type":"buy","symbol":"VTI","amount":82}]}`),
		tools.ToolContext{BaseCurrency: "USD"})
	require.NoError(t, err)

	res := out.(*SimulationResult)
	assert.Equal(t, "10082", res.SimulatedTotal.Amount.String())

	// only reads happened
	provider.AssertExpectations(t)
	provider.AssertNotCalled(t, "GetPerformance", mock.Anything, mock.Anything)
}
