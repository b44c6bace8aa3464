package agents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folioagent/internal/adapters/ai"
	"folioagent/internal/audit"
	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
	"folioagent/internal/tools/portfolio"
	"folioagent/pkg/logger"
)

type mockLLM struct {
	mock.Mock
	configured bool
}

func (m *mockLLM) Name() string     { return "mock" }
func (m *mockLLM) Configured() bool { return m.configured }

func (m *mockLLM) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.ChatResponse), args.Error(1)
}

// requests captures every ChatRequest the mock receives
func (m *mockLLM) requests() []ai.ChatRequest {
	var out []ai.ChatRequest
	for _, c := range m.Calls {
		if c.Method == "Chat" {
			out = append(out, c.Arguments.Get(1).(ai.ChatRequest))
		}
	}
	return out
}

type portfolioStub struct {
	details *domain.Details
	perf    *domain.PerformanceResult
	err     error
}

func (p *portfolioStub) GetDetails(context.Context, domain.Query) (*domain.Details, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.details, nil
}

func (p *portfolioStub) GetPerformance(context.Context, domain.Query) (*domain.PerformanceResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.perf == nil {
		return &domain.PerformanceResult{}, nil
	}
	return p.perf, nil
}

type recordingSink struct {
	mu    sync.Mutex
	turns []audit.Turn
}

func (s *recordingSink) Record(_ context.Context, t audit.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

func (s *recordingSink) Close(context.Context) error { return nil }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func holding(symbol, class, qty, price, value string) domain.Position {
	return domain.Position{
		Symbol:              symbol,
		AssetClass:          class,
		Currency:            "USD",
		Quantity:            decimal.RequireFromString(qty),
		MarketPrice:         decPtr(price),
		ValueInBaseCurrency: decPtr(value),
	}
}

// threeHoldings is AAPL 37.08%, VTI 39.18%, BND 23.74% with full market data
func threeHoldings() *domain.Details {
	return &domain.Details{Holdings: map[string]domain.Position{
		"AAPL": holding("AAPL", "EQUITY", "20", "185.40", "3708"),
		"VTI":  holding("VTI", "EQUITY", "15", "261.20", "3918"),
		"BND":  holding("BND", "FIXED_INCOME", "32.5", "73.04", "2374"),
	}}
}

func newRegistry(t *testing.T, provider domain.Provider) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(logger.Nop())
	require.NoError(t, portfolio.Register(reg, portfolio.Deps{Provider: provider, Log: logger.Nop()}, portfolio.Options{}))
	return reg
}

func textResponse(text string) *ai.ChatResponse {
	return &ai.ChatResponse{
		Content:    []ai.ContentBlock{ai.TextBlock(text)},
		StopReason: ai.StopEndTurn,
	}
}

type call struct {
	id    string
	name  string
	input string
}

func toolResponse(calls ...call) *ai.ChatResponse {
	resp := &ai.ChatResponse{StopReason: ai.StopToolUse}
	for _, c := range calls {
		resp.Content = append(resp.Content, ai.ContentBlock{
			Type:  ai.BlockToolUse,
			ID:    c.id,
			Name:  c.name,
			Input: json.RawMessage(c.input),
		})
	}
	return resp
}

func testConfig() Config {
	return Config{Model: "test-model", MaxTokens: 1024, BaseCurrency: "USD", Language: "en", MaxToolRounds: 1, DeepToolRounds: 3}
}

func collect(events *[]Event) Emitter {
	return func(e Event) { *events = append(*events, e) }
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
