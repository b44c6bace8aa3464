package audit

import (
	"context"
	"time"
)

// Turn is the audit view of one completed chat turn
type Turn struct {
	TurnID     string
	UserID     string
	Confidence float64
	Calls      []ToolCall
	At         time.Time
}

// ToolCall mirrors one tool trace row
type ToolCall struct {
	Tool       string
	OK         bool
	DurationMs int64
	Error      string
}

// Sink receives completed turns. Record must not block the caller on I/O.
type Sink interface {
	Record(ctx context.Context, turn Turn)
	Close(ctx context.Context) error
}

// NoopSink discards every turn
type NoopSink struct{}

var _ Sink = NoopSink{}

// Record does nothing
func (NoopSink) Record(context.Context, Turn) {}

// Close does nothing
func (NoopSink) Close(context.Context) error { return nil }
