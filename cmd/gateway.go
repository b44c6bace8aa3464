package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"folioagent/internal/api"
	"folioagent/internal/api/health"
	"folioagent/internal/gateway"
	"folioagent/internal/metrics"
	"folioagent/pkg/auth"
	"folioagent/pkg/errors"
)

// session tokens are issued elsewhere; the duration only matters for GenerateToken
const tokenDuration = 24 * time.Hour

func newGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Serve the client-facing proxy (JSON, SSE and WebSocket) in front of the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup("gateway")
			if err != nil {
				return err
			}
			defer p.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runGateway(ctx, p)
		},
	}
}

func runGateway(ctx context.Context, p *process) error {
	gw := p.cfg.Gateway
	if strings.TrimSpace(gw.JWTSecret) == "" {
		return errors.Wrap(errors.ErrNotConfigured, "JWT_SECRET_KEY is required by the gateway")
	}

	metrics.Init()

	tokens := auth.NewJWTService(gw.JWTSecret, "", tokenDuration)
	proxy := gateway.NewProxy(gw.AgentURL, gw.RequestTimeout, gw.UserIDHeader, p.log)
	if !proxy.Configured() {
		p.log.Warn("AGENT_SERVICE_URL is not set; agent routes will answer 503")
	}
	bridge := gateway.NewBridge(proxy, tokens, gateway.OriginChecker(p.cfg.HTTP.CORSOrigins), p.log)

	agentLive := ""
	if proxy.Configured() {
		agentLive = strings.TrimRight(gw.AgentURL, "/") + "/live"
	}
	checks := []health.Check{health.UpstreamCheck("agent", agentLive, 3*time.Second)}

	cfg := p.serverConfig("gateway", p.cfg.HTTP.GatewayPort)
	engine := api.NewEngine(cfg, health.New(p.log, cfg.ServiceName, cfg.Version, checks...), p.log)
	handler := gateway.NewHandler(proxy, tokens, bridge, gw.WebSocketPath, p.log)
	handler.Register(engine)

	return serve(ctx, api.NewServer(cfg, handler.GuardUpgrades(engine), p.log), cfg.ShutdownTimeout, p.log)
}
