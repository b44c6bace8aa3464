package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"folioagent/internal/adapters/config"
	"folioagent/pkg/errors"
)

// ToolUsageTable receives one row per tool invocation
const ToolUsageTable = "agent_tool_usage"

const toolUsageSchema = `
CREATE TABLE IF NOT EXISTS agent_tool_usage (
	turn_id     String,
	user_id     String,
	tool        LowCardinality(String),
	ok          UInt8,
	error       String,
	duration_ms UInt32,
	confidence  Float64,
	created_at  DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(created_at)
ORDER BY (user_id, created_at)`

// Client wraps ClickHouse connection
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to ping clickhouse")
	}

	return &Client{conn: conn}, nil
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health checks ClickHouse connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// EnsureSchema creates the audit table when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, toolUsageSchema); err != nil {
		return errors.Wrap(err, "create agent_tool_usage table")
	}
	return nil
}
