package middleware

import (
	"context"
	"encoding/json"
	"time"

	"folioagent/internal/metrics"
	"folioagent/internal/tools"
)

// StatsMiddleware records tool latency and outcome in Prometheus.
type StatsMiddleware struct{}

// Wrap adds metrics recording around a tool.
func (StatsMiddleware) Wrap(t tools.Tool) tools.Tool {
	def := t.Definition()
	return tools.New(def, func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (interface{}, error) {
		start := time.Now()
		result, err := t.Execute(ctx, input, tc)
		metrics.RecordToolExecution(def.Name, time.Since(start), err)
		return result, err
	})
}
