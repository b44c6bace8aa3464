package portfolio

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	domain "folioagent/internal/domain/portfolio"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetDetails(ctx context.Context, q domain.Query) (*domain.Details, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Details), args.Error(1)
}

func (m *mockProvider) GetPerformance(ctx context.Context, q domain.Query) (*domain.PerformanceResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PerformanceResult), args.Error(1)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func position(symbol, class, qty, price, value, investment string) domain.Position {
	p := domain.Position{
		Symbol:     symbol,
		AssetClass: class,
		Quantity:   decimal.RequireFromString(qty),
		Currency:   "USD",
	}
	if price != "" {
		p.MarketPrice = dec(price)
	}
	if value != "" {
		p.ValueInBaseCurrency = dec(value)
	}
	if investment != "" {
		p.Investment = dec(investment)
	}
	return p
}

// threeHoldings is the reference AAPL/VTI/BND portfolio with full market data
func threeHoldings() *domain.Details {
	return &domain.Details{Holdings: map[string]domain.Position{
		"AAPL": position("AAPL", "EQUITY", "20", "185.40", "3708", "3000"),
		"VTI":  position("VTI", "EQUITY", "15", "261.20", "3918", "3500"),
		"BND":  position("BND", "FIXED_INCOME", "32.5", "73.04", "2374", "2400"),
	}}
}
