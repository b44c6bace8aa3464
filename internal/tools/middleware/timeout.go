package middleware

import (
	"context"
	"encoding/json"
	"time"

	"folioagent/internal/tools"
	"folioagent/pkg/errors"
)

// TimeoutMiddleware enforces per-call deadlines for tool execution.
type TimeoutMiddleware struct {
	Timeout time.Duration
}

// Wrap sets a timeout on tool execution if configured.
func (m TimeoutMiddleware) Wrap(t tools.Tool) tools.Tool {
	if m.Timeout <= 0 {
		return t
	}

	def := t.Definition()
	return tools.New(def, func(ctx context.Context, input json.RawMessage, tc tools.ToolContext) (interface{}, error) {
		ctxWithTimeout, cancel := context.WithTimeout(ctx, m.Timeout)
		defer cancel()

		result, err := t.Execute(ctxWithTimeout, input, tc)
		if err != nil && ctx.Err() == nil && errors.Is(ctxWithTimeout.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "%s exceeded %s", def.Name, m.Timeout)
		}
		return result, err
	})
}
