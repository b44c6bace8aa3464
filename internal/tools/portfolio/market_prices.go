package portfolio

import (
	"context"
	"encoding/json"

	"folioagent/internal/tools"
)

const marketDataUnavailable = "unavailable"

// NewMarketPricesTool builds getMarketPrices. No market data feed is connected yet,
// so every row reports source "unavailable" and the call never fails.
func NewMarketPricesTool(deps Deps) tools.Tool {
	def := tools.Definition{
		Name:        ToolMarketPrices,
		Description: "Looks up current market prices for symbols from an external market data feed.",
		// no type constraints on symbols: any object input reaches the handler
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"symbols": map[string]interface{}{
					"description": `Ticker symbols as an array of strings, e.g. ["AAPL","VTI"].`,
				},
			},
		},
	}

	return tools.New(def, func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (interface{}, error) {
		var in struct {
			Symbols []string `json:"symbols"`
		}
		// malformed input still yields an empty, well-formed result
		_ = tools.DecodeInput(input, &in)

		res := &MarketPricesResult{
			Prices: make([]PriceRow, 0, len(in.Symbols)),
			Note:   "External market data is not connected; prices are unavailable.",
		}
		for _, s := range in.Symbols {
			symbol := normalizeSymbol(s)
			if symbol == "" {
				continue
			}
			res.Prices = append(res.Prices, PriceRow{
				Symbol:   symbol,
				Currency: deps.currency(tc),
				Source:   marketDataUnavailable,
			})
		}
		return res, nil
	})
}
