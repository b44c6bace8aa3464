package portfolio

import (
	"github.com/shopspring/decimal"

	domain "folioagent/internal/domain/portfolio"
)

// Tool names as exposed to the model
const (
	ToolSnapshot     = "getPortfolioSnapshot"
	ToolPerformance  = "getPerformance"
	ToolSimulate     = "simulateAllocationChange"
	ToolMarketPrices = "getMarketPrices"
)

// ValuationMethod tells whether values come from live prices or cost basis
type ValuationMethod string

const (
	ValuationMarket    ValuationMethod = "market"
	ValuationCostBasis ValuationMethod = "cost_basis"
)

func valuationFor(priceDataMissing bool) ValuationMethod {
	if priceDataMissing {
		return ValuationCostBasis
	}
	return ValuationMarket
}

// Money is an amount in a currency
type Money struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// AllocationRow is one slice of an allocation breakdown
type AllocationRow struct {
	Key     string          `json:"key"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// HoldingRow is the per-symbol view returned by the snapshot tool
type HoldingRow struct {
	Symbol     string           `json:"symbol"`
	Name       string           `json:"name,omitempty"`
	AssetClass string           `json:"assetClass"`
	Currency   string           `json:"currency,omitempty"`
	Quantity   decimal.Decimal  `json:"quantity"`
	CostBasis  *decimal.Decimal `json:"costBasis"`
	Price      *decimal.Decimal `json:"price"`
	Value      decimal.Decimal  `json:"value"`
}

// SnapshotResult is the output of getPortfolioSnapshot
type SnapshotResult struct {
	AccountID              string           `json:"accountId"`
	Timeframe              domain.DateRange `json:"timeframe"`
	ValuationMethod        ValuationMethod  `json:"valuationMethod"`
	AsOf                   *string          `json:"asOf"`
	TotalValue             Money            `json:"totalValue"`
	AllocationBySymbol     []AllocationRow  `json:"allocationBySymbol"`
	AllocationByAssetClass []AllocationRow  `json:"allocationByAssetClass"`
	Holdings               []HoldingRow     `json:"holdings"`
	IsPriceDataMissing     bool             `json:"isPriceDataMissing"`
	HasErrors              bool             `json:"hasErrors"`
}

// AllocationPercents returns the per-symbol percentages
func (s *SnapshotResult) AllocationPercents() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(s.AllocationBySymbol))
	for _, row := range s.AllocationBySymbol {
		out = append(out, row.Percent)
	}
	return out
}

// PriceDataMissing reports whether any holding fell back to cost basis
func (s *SnapshotResult) PriceDataMissing() bool {
	return s.IsPriceDataMissing
}

// ProviderErrors reports whether the portfolio API flagged errors
func (s *SnapshotResult) ProviderErrors() bool {
	return s.HasErrors
}

// HoldingCount returns the number of retained holdings
func (s *SnapshotResult) HoldingCount() int {
	return len(s.Holdings)
}

// SeriesPoint is one downsampled performance sample
type SeriesPoint struct {
	Date          string           `json:"date"`
	NetWorth      *decimal.Decimal `json:"netWorth"`
	ReturnPercent *decimal.Decimal `json:"returnPercent"`
}

// PerformanceResult is the output of getPerformance
type PerformanceResult struct {
	Timeframe           domain.DateRange `json:"timeframe"`
	ValuationMethod     ValuationMethod  `json:"valuationMethod"`
	TotalReturnPercent  *decimal.Decimal `json:"totalReturnPercent"`
	Series              []SeriesPoint    `json:"series"`
	ReasonIfUnavailable string           `json:"reasonIfUnavailable,omitempty"`
}

// PriceDataMissing reports whether performance was computed from cost basis
func (p *PerformanceResult) PriceDataMissing() bool {
	return p.ValuationMethod == ValuationCostBasis
}

// SimulatedRow compares one symbol before and after the hypothetical changes
type SimulatedRow struct {
	Symbol           string          `json:"symbol"`
	CurrentValue     decimal.Decimal `json:"currentValue"`
	SimulatedValue   decimal.Decimal `json:"simulatedValue"`
	CurrentPercent   decimal.Decimal `json:"currentPercent"`
	SimulatedPercent decimal.Decimal `json:"simulatedPercent"`
}

// SimulationResult is the output of simulateAllocationChange
type SimulationResult struct {
	ValuationMethod    ValuationMethod `json:"valuationMethod"`
	CurrentTotal       Money           `json:"currentTotal"`
	SimulatedTotal     Money           `json:"simulatedTotal"`
	Allocations        []SimulatedRow  `json:"allocations"`
	Notes              []string        `json:"notes"`
	IsPriceDataMissing bool            `json:"isPriceDataMissing"`
}

// PriceDataMissing reports whether current values used cost basis
func (s *SimulationResult) PriceDataMissing() bool {
	return s.IsPriceDataMissing
}

// PriceRow is one line of getMarketPrices
type PriceRow struct {
	Symbol   string           `json:"symbol"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
	Source   string           `json:"source"`
}

// MarketPricesResult is the output of getMarketPrices
type MarketPricesResult struct {
	Prices []PriceRow `json:"prices"`
	Note   string     `json:"note"`
}
