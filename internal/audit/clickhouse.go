package audit

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	chadapter "folioagent/internal/adapters/clickhouse"
	"folioagent/internal/metrics"
	"folioagent/pkg/clickhouse"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

// Row is one line of the agent_tool_usage table
type Row struct {
	TurnID     string
	UserID     string
	Tool       string
	OK         bool
	Error      string
	DurationMs uint32
	Confidence float64
	CreatedAt  time.Time
}

// ClickHouseSink buffers tool usage rows and writes them in batches
type ClickHouseSink struct {
	writer *clickhouse.BatchWriter[Row]
	log    *logger.Logger
}

var _ Sink = (*ClickHouseSink)(nil)

// NewClickHouseSink creates a sink writing into conn and starts its flush loop
func NewClickHouseSink(ctx context.Context, conn driver.Conn, batchSize int, flushInterval time.Duration, log *logger.Logger) *ClickHouseSink {
	return newClickHouseSink(ctx, insertRows(conn), batchSize, flushInterval, log)
}

func newClickHouseSink(ctx context.Context, flush clickhouse.FlushFunc[Row], batchSize int, flushInterval time.Duration, log *logger.Logger) *ClickHouseSink {
	log = log.With("component", "audit_sink")
	writer := clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[Row]{
		FlushFunc: func(ctx context.Context, batch []Row) error {
			err := flush(ctx, batch)
			metrics.RecordAuditRows(len(batch), err)
			return err
		},
		TableName:    chadapter.ToolUsageTable,
		MaxBatchSize: batchSize,
		MaxAge:       flushInterval,
		Logger:       log,
	})
	writer.Start(ctx)

	return &ClickHouseSink{writer: writer, log: log}
}

// Record converts turn into rows and buffers them. Writes happen on the
// writer's flush loop.
func (s *ClickHouseSink) Record(_ context.Context, turn Turn) {
	if len(turn.Calls) == 0 {
		return
	}

	rows := Rows(turn)
	if !s.writer.Add(rows...) {
		metrics.AuditRows.WithLabelValues("dropped").Inc()
		s.log.Warnw("audit buffer full, rows dropped", "turn_id", turn.TurnID)
	}
}

// Close flushes buffered rows
func (s *ClickHouseSink) Close(ctx context.Context) error {
	return s.writer.Stop(ctx)
}

// Rows flattens a turn into table rows, one per tool call
func Rows(turn Turn) []Row {
	at := turn.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	rows := make([]Row, 0, len(turn.Calls))
	for _, c := range turn.Calls {
		ms := c.DurationMs
		if ms < 0 {
			ms = 0
		}
		rows = append(rows, Row{
			TurnID:     turn.TurnID,
			UserID:     turn.UserID,
			Tool:       c.Tool,
			OK:         c.OK,
			Error:      c.Error,
			DurationMs: uint32(ms),
			Confidence: turn.Confidence,
			CreatedAt:  at,
		})
	}
	return rows
}

func insertRows(conn driver.Conn) clickhouse.FlushFunc[Row] {
	return func(ctx context.Context, rows []Row) error {
		batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+chadapter.ToolUsageTable)
		if err != nil {
			return errors.Wrap(err, "prepare audit batch")
		}

		for _, r := range rows {
			var ok uint8
			if r.OK {
				ok = 1
			}
			if err := batch.Append(r.TurnID, r.UserID, r.Tool, ok, r.Error, r.DurationMs, r.Confidence, r.CreatedAt); err != nil {
				_ = batch.Abort()
				return errors.Wrap(err, "append audit row")
			}
		}

		if err := batch.Send(); err != nil {
			return errors.Wrap(err, "send audit batch")
		}
		return nil
	}
}
