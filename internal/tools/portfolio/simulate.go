package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
	"folioagent/pkg/errors"
)

// ChangeType is the direction of a hypothetical trade
type ChangeType string

const (
	ChangeBuy  ChangeType = "buy"
	ChangeSell ChangeType = "sell"
)

// Change is one hypothetical trade expressed in base currency
type Change struct {
	Type   ChangeType      `json:"type"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// NewSimulateTool builds simulateAllocationChange. It never writes to the portfolio.
func NewSimulateTool(deps Deps) tools.Tool {
	def := tools.Definition{
		Name: ToolSimulate,
		Description: "Projects how allocation percentages would change after hypothetical buys or sells. " +
			"Amounts are in the base currency. Nothing is executed or saved.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"changes": map[string]interface{}{
					"type":     "array",
					"minItems": 1,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"type":   map[string]interface{}{"type": "string", "enum": []interface{}{"buy", "sell"}},
							"symbol": map[string]interface{}{"type": "string", "minLength": 1},
							"amount": map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
						},
						"required":             []interface{}{"type", "symbol", "amount"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []interface{}{"changes"},
			"additionalProperties": false,
		},
	}

	return tools.New(def, func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (interface{}, error) {
		var in struct {
			Changes []Change `json:"changes"`
		}
		if err := tools.DecodeInput(input, &in); err != nil {
			return nil, err
		}
		if len(in.Changes) == 0 {
			return nil, errors.NewValidationError("changes", "at least one change is required", nil)
		}

		details, err := deps.Provider.GetDetails(ctx, query(domain.DateRangeMax, tc))
		if err != nil {
			return nil, errors.Wrap(err, "fetch holdings")
		}

		return Simulate(details, in.Changes, deps.currency(tc)), nil
	})
}

// Simulate applies changes in order to the current holdings using exact decimals.
// Overselling clamps the symbol to zero and adds a note.
func Simulate(details *domain.Details, changes []Change, currency string) *SimulationResult {
	current := map[string]decimal.Decimal{}
	missing := false
	for key, p := range details.Holdings {
		value, _ := holdingValue(p)
		if !retained(p, value) {
			continue
		}
		if priceMissing(p) {
			missing = true
		}
		symbol := p.Symbol
		if symbol == "" {
			symbol = key
		}
		symbol = normalizeSymbol(symbol)
		current[symbol] = current[symbol].Add(value)
	}

	simulated := make(map[string]decimal.Decimal, len(current))
	for k, v := range current {
		simulated[k] = v
	}

	notes := []string{}
	for _, c := range changes {
		symbol := normalizeSymbol(c.Symbol)
		amount := c.Amount.Abs()
		have := simulated[symbol]

		switch ChangeType(strings.ToLower(string(c.Type))) {
		case ChangeBuy:
			simulated[symbol] = have.Add(amount)
		case ChangeSell:
			if amount.GreaterThan(have) {
				notes = append(notes, fmt.Sprintf(
					"Selling %s %s of %s exceeds the current value of %s %s; the position was reduced to 0.",
					amount.StringFixed(2), currency, symbol, have.StringFixed(2), currency))
				simulated[symbol] = decimal.Zero
				continue
			}
			simulated[symbol] = have.Sub(amount)
		default:
			notes = append(notes, fmt.Sprintf("Ignored change with unknown type %q for %s.", c.Type, symbol))
		}
	}

	currentTotal := sum(current)
	simulatedTotal := sum(simulated)

	rows := make([]SimulatedRow, 0, len(simulated))
	for symbol, value := range simulated {
		rows = append(rows, SimulatedRow{
			Symbol:           symbol,
			CurrentValue:     current[symbol],
			SimulatedValue:   value,
			CurrentPercent:   Percent(current[symbol], currentTotal),
			SimulatedPercent: Percent(value, simulatedTotal),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].SimulatedPercent.Cmp(rows[j].SimulatedPercent); c != 0 {
			return c > 0
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	return &SimulationResult{
		ValuationMethod:    valuationFor(missing),
		CurrentTotal:       Money{Currency: currency, Amount: currentTotal},
		SimulatedTotal:     Money{Currency: currency, Amount: simulatedTotal},
		Allocations:        rows,
		Notes:              notes,
		IsPriceDataMissing: missing,
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func sum(values map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
