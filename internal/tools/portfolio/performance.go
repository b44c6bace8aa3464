package portfolio

import (
	"context"
	"encoding/json"

	domain "folioagent/internal/domain/portfolio"
	"folioagent/internal/tools"
)

// MaxSeriesPoints bounds the performance series handed to the model
const MaxSeriesPoints = 20

const performanceUnavailable = "Performance data could not be retrieved from the portfolio service right now."

// NewPerformanceTool builds getPerformance
func NewPerformanceTool(deps Deps) tools.Tool {
	def := tools.Definition{
		Name: ToolPerformance,
		Description: "Returns the portfolio's total return for a date range and a short time series of net worth " +
			"and return. Use 1y or ytd when the user does not name a period.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"dateRange": dateRangeSchema("Reporting window."),
			},
			"required":             []interface{}{"dateRange"},
			"additionalProperties": false,
		},
	}

	log := deps.logger().With("tool", ToolPerformance)

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

		perf, err := deps.Provider.GetPerformance(ctx, query(rng, tc))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnw("performance unavailable", "user_id", tc.UserID, "range", rng, "error", err)
			return &PerformanceResult{
				Timeframe:           rng,
				ValuationMethod:     ValuationMarket,
				Series:              []SeriesPoint{},
				ReasonIfUnavailable: performanceUnavailable,
			}, nil
		}

		return BuildPerformance(perf, rng), nil
	})
}

// BuildPerformance maps a provider result onto the tool output
func BuildPerformance(perf *domain.PerformanceResult, rng domain.DateRange) *PerformanceResult {
	res := &PerformanceResult{
		Timeframe:          rng,
		ValuationMethod:    valuationFor(perf.HasErrors),
		TotalReturnPercent: perf.Performance.NetPerformancePercentage,
		Series:             []SeriesPoint{},
	}

	for _, p := range Downsample(perf.Chart, MaxSeriesPoints) {
		res.Series = append(res.Series, SeriesPoint{
			Date:          p.Date,
			NetWorth:      p.NetWorth,
			ReturnPercent: p.NetPerformanceInPercentage,
		})
	}
	return res
}

// Downsample keeps at most max points by fixed stride. The last point is always kept.
func Downsample[T any](points []T, max int) []T {
	n := len(points)
	if max < 2 || n <= max {
		return points
	}

	stride := (n - 1 + max - 2) / (max - 1)
	out := make([]T, 0, max)
	for i := 0; i < n-1; i += stride {
		out = append(out, points[i])
	}
	return append(out, points[n-1])
}
