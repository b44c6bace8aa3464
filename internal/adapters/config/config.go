package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"folioagent/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Agent         AgentConfig
	Gateway       GatewayConfig
	Redis         RedisConfig
	ClickHouse    ClickHouseConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"folioagent"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	AgentPort       int           `envconfig:"AGENT_PORT" default:"3334"`
	GatewayPort     int           `envconfig:"GATEWAY_PORT" default:"3333"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins     []string      `envconfig:"HTTP_CORS_ORIGINS" default:"*"`
}

type AIConfig struct {
	Provider    string  `envconfig:"AI_PROVIDER" default:"anthropic"`
	ClaudeKey   string  `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIKey   string  `envconfig:"OPENAI_API_KEY"`
	Model       string  `envconfig:"AI_MODEL"`
	MaxTokens   int     `envconfig:"AI_MAX_TOKENS" default:"2048"`
	Temperature float64 `envconfig:"AI_TEMPERATURE" default:"0.2"`
	// Timeout bounds a single provider HTTP call
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`

	RateLimitEnabled bool    `envconfig:"AI_RATE_LIMIT_ENABLED" default:"true"`
	RateLimitPerMin  float64 `envconfig:"AI_RATE_LIMIT_PER_MINUTE" default:"50"`
	RateLimitBurst   int     `envconfig:"AI_RATE_LIMIT_BURST" default:"5"`
	ClaudeBaseURL    string  `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
	OpenAIBaseURL    string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
}

type AgentConfig struct {
	BaseCurrency string `envconfig:"AGENT_BASE_CURRENCY" default:"USD"`
	Language     string `envconfig:"AGENT_LANGUAGE" default:"en"`
	// MaxToolRounds is the number of tool-execution rounds a default turn may run
	MaxToolRounds  int           `envconfig:"AGENT_MAX_TOOL_ROUNDS" default:"1"`
	DeepToolRounds int           `envconfig:"AGENT_DEEP_TOOL_ROUNDS" default:"3"`
	ToolTimeout    time.Duration `envconfig:"AGENT_TOOL_TIMEOUT" default:"20s"`
	// ExternalMarketData registers the getMarketPrices tool
	ExternalMarketData bool   `envconfig:"AGENT_EXTERNAL_MARKET_DATA" default:"false"`
	PortfolioAPIURL    string `envconfig:"PORTFOLIO_API_URL" default:"http://localhost:3333"`
}

type GatewayConfig struct {
	// AgentURL is the base URL of the agent process; empty means unconfigured
	AgentURL       string        `envconfig:"AGENT_SERVICE_URL"`
	JWTSecret      string        `envconfig:"JWT_SECRET_KEY"`
	WebSocketPath  string        `envconfig:"GATEWAY_WS_PATH" default:"/api/v1/agent/ws"`
	UserIDHeader   string        `envconfig:"GATEWAY_USER_ID_HEADER" default:"X-User-Id"`
	RequestTimeout time.Duration `envconfig:"GATEWAY_REQUEST_TIMEOUT" default:"90s"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"folioagent"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"5s"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"500"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if cfg.Agent.MaxToolRounds < 1 {
		cfg.Agent.MaxToolRounds = 1
	}
	if cfg.Agent.DeepToolRounds < cfg.Agent.MaxToolRounds {
		cfg.Agent.DeepToolRounds = cfg.Agent.MaxToolRounds
	}

	return &cfg, nil
}
