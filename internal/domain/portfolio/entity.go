package portfolio

import (
	"github.com/shopspring/decimal"
)

// DateRange is the reporting window understood by the portfolio API
type DateRange string

const (
	DateRangeDay   DateRange = "1d"
	DateRangeWTD   DateRange = "wtd"
	DateRangeMTD   DateRange = "mtd"
	DateRangeYTD   DateRange = "ytd"
	DateRangeYear  DateRange = "1y"
	DateRange5Year DateRange = "5y"
	DateRangeMax   DateRange = "max"
)

// AllDateRanges returns the supported ranges in the order tools advertise them
func AllDateRanges() []DateRange {
	return []DateRange{
		DateRangeDay,
		DateRangeWTD,
		DateRangeMTD,
		DateRangeYTD,
		DateRangeYear,
		DateRange5Year,
		DateRangeMax,
	}
}

// Valid reports whether r is one of the supported ranges
func (r DateRange) Valid() bool {
	for _, v := range AllDateRanges() {
		if r == v {
			return true
		}
	}
	return false
}

// String returns the wire value
func (r DateRange) String() string {
	return string(r)
}

// ParseDateRange returns def when s is empty and an error when s is unknown
func ParseDateRange(s string, def DateRange) (DateRange, error) {
	if s == "" {
		return def, nil
	}
	r := DateRange(s)
	if !r.Valid() {
		return "", ErrInvalidDateRange
	}
	return r, nil
}

// Position is a single holding as reported by the portfolio API.
// Monetary fields are nil when the API has no value for them.
type Position struct {
	Symbol              string           `json:"symbol"`
	Name                string           `json:"name"`
	Quantity            decimal.Decimal  `json:"quantity"`
	Currency            string           `json:"currency"`
	MarketPrice         *decimal.Decimal `json:"marketPrice"`
	Investment          *decimal.Decimal `json:"investment"` // cost basis
	ValueInBaseCurrency *decimal.Decimal `json:"valueInBaseCurrency"`
	AssetClass          string           `json:"assetClass"`
}

// Details is the holdings view of a portfolio
type Details struct {
	Holdings  map[string]Position `json:"holdings"`
	HasErrors bool                `json:"hasErrors"`
}

// ChartPoint is one sample of the performance time series
type ChartPoint struct {
	Date                       string           `json:"date"`
	NetWorth                   *decimal.Decimal `json:"netWorth"`
	NetPerformanceInPercentage *decimal.Decimal `json:"netPerformanceInPercentage"`
}

// Performance holds the aggregate figures of a performance response
type Performance struct {
	NetPerformancePercentage *decimal.Decimal `json:"netPerformancePercentage"`
}

// PerformanceResult is the performance view of a portfolio
type PerformanceResult struct {
	Chart       []ChartPoint `json:"chart"`
	Performance Performance  `json:"performance"`
	HasErrors   bool         `json:"hasErrors"`
}

// Query scopes a provider call to one caller
type Query struct {
	DateRange       DateRange
	UserID          string
	ImpersonationID string
	AccessToken     string
}
