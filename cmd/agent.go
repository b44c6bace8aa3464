package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"folioagent/internal/adapters/ai"
	chadapter "folioagent/internal/adapters/clickhouse"
	portfolioapi "folioagent/internal/adapters/portfolio"
	redisadapter "folioagent/internal/adapters/redis"
	"folioagent/internal/agents"
	"folioagent/internal/api"
	"folioagent/internal/api/health"
	"folioagent/internal/audit"
	"folioagent/internal/metrics"
	"folioagent/internal/tools"
	portfoliotools "folioagent/internal/tools/portfolio"
)

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Serve the chat orchestrator over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup("agent")
			if err != nil {
				return err
			}
			defer p.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAgent(ctx, p)
		},
	}
}

func runAgent(ctx context.Context, p *process) error {
	metrics.Init()

	stack, err := buildAgent(ctx, p)
	if err != nil {
		return err
	}
	defer stack.close()

	prometheus.MustRegister(metrics.NewPoolCollector(stack.redisClient(), stack.clickhouseConn()))

	checks := []health.Check{health.CredentialCheck(stack.orchestrator.Configured)}
	if stack.redis != nil {
		checks = append(checks, health.PingCheck("redis", stack.redis, true))
	}
	if stack.clickhouse != nil {
		checks = append(checks, health.PingCheck("clickhouse", stack.clickhouse, false))
	}

	cfg := p.serverConfig("agent", p.cfg.HTTP.AgentPort)
	engine := api.NewEngine(cfg, health.New(p.log, cfg.ServiceName, cfg.Version, checks...), p.log)
	api.NewAgentHandler(stack.orchestrator, p.cfg.Agent.BaseCurrency, p.log).Register(engine)

	if !stack.orchestrator.Configured() {
		p.log.Warn("No LLM credential configured; chat turns will answer with a configuration notice")
	}

	return serve(ctx, api.NewServer(cfg, engine, p.log), cfg.ShutdownTimeout, p.log)
}

// agentStack is the orchestrator with its optional backing stores
type agentStack struct {
	orchestrator *agents.Orchestrator
	sink         audit.Sink
	redis        *redisadapter.Client
	clickhouse   *chadapter.Client
	p            *process
}

// buildAgent wires the provider, the portfolio tools and the audit sink. Redis and
// ClickHouse are optional; a failed connection is logged and the feature disabled.
func buildAgent(ctx context.Context, p *process) (*agentStack, error) {
	cfg := p.cfg
	stack := &agentStack{sink: audit.NoopSink{}, p: p}

	if cfg.Redis.Enabled {
		client, err := redisadapter.NewClient(ctx, cfg.Redis)
		if err != nil {
			p.log.Warnf("Redis unavailable, using in-process rate limiting: %v", err)
		} else {
			stack.redis = client
			p.log.Info("Redis connected")
		}
	}

	if cfg.ClickHouse.Enabled {
		client, err := chadapter.NewClient(ctx, cfg.ClickHouse)
		if err == nil {
			err = client.EnsureSchema(ctx)
			if err != nil {
				_ = client.Close()
			}
		}
		if err != nil {
			p.log.Warnf("ClickHouse unavailable, tool usage audit disabled: %v", err)
		} else {
			stack.clickhouse = client
			stack.sink = audit.NewClickHouseSink(context.WithoutCancel(ctx), client.Conn(),
				cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval, p.log)
			p.log.Info("ClickHouse audit sink started")
		}
	}

	registry := tools.NewRegistry(p.log)
	deps := portfoliotools.Deps{
		Provider:     portfolioapi.NewClient(cfg.Agent.PortfolioAPIURL, cfg.Agent.ToolTimeout, p.log),
		BaseCurrency: cfg.Agent.BaseCurrency,
		Log:          p.log,
	}
	opts := portfoliotools.Options{
		ExternalMarketData: cfg.Agent.ExternalMarketData,
		Timeout:            cfg.Agent.ToolTimeout,
	}
	if err := portfoliotools.Register(registry, deps, opts); err != nil {
		stack.close()
		return nil, err
	}

	provider := ai.BuildProvider(cfg.AI, stack.redisClient())
	stack.orchestrator = agents.NewOrchestrator(provider, registry, agents.ConfigFrom(cfg),
		agents.WithAuditSink(stack.sink),
		agents.WithLogger(p.log),
	)
	return stack, nil
}

func (s *agentStack) redisClient() *goredis.Client {
	if s.redis == nil {
		return nil
	}
	return s.redis.Client()
}

func (s *agentStack) clickhouseConn() driver.Conn {
	if s.clickhouse == nil {
		return nil
	}
	return s.clickhouse.Conn()
}

func (s *agentStack) close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.p.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := s.sink.Close(ctx); err != nil {
		s.p.log.Warnf("Failed to flush audit sink: %v", err)
	}
	if s.clickhouse != nil {
		_ = s.clickhouse.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
