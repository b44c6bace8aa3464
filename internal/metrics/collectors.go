package metrics

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// PoolCollector exports connection pool stats of the optional backing stores.
// Either client may be nil.
type PoolCollector struct {
	redis      *redis.Client
	clickhouse driver.Conn

	redisConns      *prometheus.Desc
	redisPoolEvents *prometheus.Desc
	clickhouseConns *prometheus.Desc
}

// NewPoolCollector creates a collector over the given clients
func NewPoolCollector(redisClient *redis.Client, clickhouse driver.Conn) *PoolCollector {
	return &PoolCollector{
		redis:      redisClient,
		clickhouse: clickhouse,

		redisConns: prometheus.NewDesc(
			"folioagent_redis_pool_connections",
			"Redis pool connections by state",
			[]string{"state"}, nil, // state: total|idle|stale
		),
		redisPoolEvents: prometheus.NewDesc(
			"folioagent_redis_pool_events_total",
			"Redis pool lookups by outcome",
			[]string{"outcome"}, nil, // outcome: hit|miss|timeout
		),
		clickhouseConns: prometheus.NewDesc(
			"folioagent_clickhouse_pool_connections",
			"ClickHouse pool connections by state",
			[]string{"state"}, nil, // state: open|idle
		),
	}
}

// Describe implements prometheus.Collector
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.redisConns
	ch <- c.redisPoolEvents
	ch <- c.clickhouseConns
}

// Collect implements prometheus.Collector
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.redis != nil {
		stats := c.redis.PoolStats()
		ch <- prometheus.MustNewConstMetric(c.redisConns, prometheus.GaugeValue, float64(stats.TotalConns), "total")
		ch <- prometheus.MustNewConstMetric(c.redisConns, prometheus.GaugeValue, float64(stats.IdleConns), "idle")
		ch <- prometheus.MustNewConstMetric(c.redisConns, prometheus.GaugeValue, float64(stats.StaleConns), "stale")
		ch <- prometheus.MustNewConstMetric(c.redisPoolEvents, prometheus.CounterValue, float64(stats.Hits), "hit")
		ch <- prometheus.MustNewConstMetric(c.redisPoolEvents, prometheus.CounterValue, float64(stats.Misses), "miss")
		ch <- prometheus.MustNewConstMetric(c.redisPoolEvents, prometheus.CounterValue, float64(stats.Timeouts), "timeout")
	}

	if c.clickhouse != nil {
		stats := c.clickhouse.Stats()
		ch <- prometheus.MustNewConstMetric(c.clickhouseConns, prometheus.GaugeValue, float64(stats.Open), "open")
		ch <- prometheus.MustNewConstMetric(c.clickhouseConns, prometheus.GaugeValue, float64(stats.Idle), "idle")
	}
}
