package portfolio

import (
	"time"

	"folioagent/internal/tools"
	"folioagent/internal/tools/middleware"
)

// Options control which portfolio tools are registered
type Options struct {
	// ExternalMarketData registers getMarketPrices
	ExternalMarketData bool
	// Timeout bounds every tool call; zero disables it
	Timeout time.Duration
}

// Register adds the portfolio tools to registry in their fixed order
func Register(registry *tools.Registry, deps Deps, opts Options) error {
	chain := []middleware.Middleware{
		middleware.StatsMiddleware{},
		middleware.TimeoutMiddleware{Timeout: opts.Timeout},
	}

	all := []tools.Tool{
		NewSnapshotTool(deps),
		NewPerformanceTool(deps),
		NewSimulateTool(deps),
	}
	if opts.ExternalMarketData {
		all = append(all, NewMarketPricesTool(deps))
	}

	for _, t := range all {
		if err := registry.Register(middleware.Chain(t, chain...)); err != nil {
			return err
		}
	}

	deps.logger().Infow("portfolio tools registered", "tools", registry.Names())
	return nil
}
