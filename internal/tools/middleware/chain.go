package middleware

import "folioagent/internal/tools"

// Middleware decorates a tool.
type Middleware interface {
	Wrap(t tools.Tool) tools.Tool
}

// Chain applies middlewares so the first one is outermost.
func Chain(t tools.Tool, mws ...Middleware) tools.Tool {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i].Wrap(t)
	}
	return t
}
