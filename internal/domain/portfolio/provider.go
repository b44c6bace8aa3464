package portfolio

import "context"

// Provider defines read access to a user's portfolio
type Provider interface {
	GetDetails(ctx context.Context, q Query) (*Details, error)
	GetPerformance(ctx context.Context, q Query) (*PerformanceResult, error)
}
