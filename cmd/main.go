package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"folioagent/internal/adapters/config"
	"folioagent/internal/adapters/errors/noop"
	"folioagent/internal/adapters/errors/sentry"
	"folioagent/internal/api"
	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "folioagent",
		Short:         "Portfolio question-answering agent and its client gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAgentCmd(), newGatewayCmd(), newAskCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// process holds what every command needs: config, logger and error tracker
type process struct {
	cfg     *config.Config
	log     *logger.Logger
	tracker errors.Tracker
}

// setup loads configuration and initializes logging and error tracking
func setup(service string) (*process, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		return nil, errors.Wrap(err, "failed to init logger")
	}

	log := logger.Get().With("service", service)
	log.Infof("Starting %s %s in %s mode", cfg.App.Name, service, cfg.App.Env)

	tracker := initErrorTracker(cfg, service, log)
	logger.SetErrorTracker(tracker)

	return &process{cfg: cfg, log: log, tracker: tracker}, nil
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, service string, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(sentry.Options{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Version,
		Service:     service,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// close flushes the error tracker and the logger
func (p *process) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.tracker.Flush(ctx); err != nil {
		p.log.Warnf("Failed to flush error tracker: %v", err)
	}
	_ = logger.Sync()
}

func (p *process) serverConfig(service string, port int) api.ServerConfig {
	return api.ServerConfig{
		Port:            port,
		ServiceName:     p.cfg.App.Name + "-" + service,
		Version:         p.cfg.App.Version,
		ReadTimeout:     p.cfg.HTTP.ReadTimeout,
		IdleTimeout:     p.cfg.HTTP.IdleTimeout,
		CORSOrigins:     p.cfg.HTTP.CORSOrigins,
		ShutdownTimeout: p.cfg.HTTP.ShutdownTimeout,
	}
}

// serve runs server until ctx is cancelled or it fails, then shuts it down
func serve(ctx context.Context, server *api.Server, timeout time.Duration, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Graceful shutdown failed: %v", err)
	}
	return nil
}
