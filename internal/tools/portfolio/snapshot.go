package portfolio

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
	"folioagent/pkg/errors"
)

const (
	unknownAssetClass = "UNKNOWN"
	allAccounts       = "all"
	asOfLayout        = "2006-01-02"
)

var hundred = decimal.NewFromInt(100)

// NewSnapshotTool builds getPortfolioSnapshot
func NewSnapshotTool(deps Deps) tools.Tool {
	def := tools.Definition{
		Name: ToolSnapshot,
		Description: "Returns the user's current holdings with total value, allocation by symbol and by asset class, " +
			"and whether values use live market prices or fall back to cost basis.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"dateRange": dateRangeSchema("Reporting window. Defaults to max."),
			},
			"additionalProperties": false,
		},
	}

	return tools.New(def, func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (interface{}, error) {
		var in struct {
			DateRange string `json:"dateRange"`
		}
		if err := tools.DecodeInput(input, &in); err != nil {
			return nil, err
		}
		rng, err := domain.ParseDateRange(in.DateRange, domain.DateRangeMax)
		if err != nil {
			return nil, err
		}

		details, err := deps.Provider.GetDetails(ctx, query(rng, tc))
		if err != nil {
			return nil, errors.Wrap(err, "fetch holdings")
		}

		accountID := tc.AccountID
		if accountID == "" {
			accountID = allAccounts
		}
		return BuildSnapshot(details, rng, accountID, deps.currency(tc), deps.now()), nil
	})
}

// holdingValue is the market value when present, else cost basis, else zero.
// fromMarket is false whenever the fallback was used.
func holdingValue(p domain.Position) (value decimal.Decimal, fromMarket bool) {
	if p.ValueInBaseCurrency != nil && p.ValueInBaseCurrency.IsPositive() {
		return *p.ValueInBaseCurrency, true
	}
	if p.Investment != nil && p.Investment.IsPositive() {
		return *p.Investment, false
	}
	return decimal.Zero, false
}

func priceMissing(p domain.Position) bool {
	if p.MarketPrice == nil || !p.MarketPrice.IsPositive() {
		return true
	}
	return p.ValueInBaseCurrency == nil || !p.ValueInBaseCurrency.IsPositive()
}

// retained holdings have a positive quantity or a positive value
func retained(p domain.Position, value decimal.Decimal) bool {
	return p.Quantity.IsPositive() || value.IsPositive()
}

// Percent returns part/total*100 rounded to 2 decimals, or 0 when total is not positive
func Percent(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(2)
}

// BuildSnapshot computes the snapshot view of details. It performs no I/O.
func BuildSnapshot(details *domain.Details, rng domain.DateRange, accountID, currency string, now time.Time) *SnapshotResult {
	res := &SnapshotResult{
		AccountID:              accountID,
		Timeframe:              rng,
		AllocationBySymbol:     []AllocationRow{},
		AllocationByAssetClass: []AllocationRow{},
		Holdings:               []HoldingRow{},
		HasErrors:              details.HasErrors,
	}

	total := decimal.Zero
	byClass := map[string]decimal.Decimal{}

	for key, p := range details.Holdings {
		value, _ := holdingValue(p)
		if !retained(p, value) {
			continue
		}
		if priceMissing(p) {
			res.IsPriceDataMissing = true
		}

		symbol := p.Symbol
		if symbol == "" {
			symbol = key
		}
		class := strings.TrimSpace(p.AssetClass)
		if class == "" {
			class = unknownAssetClass
		}

		total = total.Add(value)
		byClass[class] = byClass[class].Add(value)

		res.Holdings = append(res.Holdings, HoldingRow{
			Symbol:     symbol,
			Name:       p.Name,
			AssetClass: class,
			Currency:   p.Currency,
			Quantity:   p.Quantity,
			CostBasis:  p.Investment,
			Price:      p.MarketPrice,
			Value:      value,
		})
	}

	sort.Slice(res.Holdings, func(i, j int) bool {
		a, b := res.Holdings[i], res.Holdings[j]
		if c := a.Value.Cmp(b.Value); c != 0 {
			return c > 0
		}
		return a.Symbol < b.Symbol
	})

	for _, h := range res.Holdings {
		res.AllocationBySymbol = append(res.AllocationBySymbol, AllocationRow{
			Key:     h.Symbol,
			Value:   h.Value,
			Percent: Percent(h.Value, total),
		})
	}

	for class, value := range byClass {
		res.AllocationByAssetClass = append(res.AllocationByAssetClass, AllocationRow{
			Key:     class,
			Value:   value,
			Percent: Percent(value, total),
		})
	}
	sortAllocations(res.AllocationByAssetClass)

	res.TotalValue = Money{Currency: currency, Amount: total}
	res.ValuationMethod = valuationFor(res.IsPriceDataMissing)
	if res.ValuationMethod == ValuationMarket {
		asOf := now.UTC().Format(asOfLayout)
		res.AsOf = &asOf
	}

	return res
}

func sortAllocations(rows []AllocationRow) {
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Value.Cmp(rows[j].Value); c != 0 {
			return c > 0
		}
		return rows[i].Key < rows[j].Key
	})
}
