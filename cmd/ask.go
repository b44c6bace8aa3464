package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"folioagent/internal/agents"
	"folioagent/internal/tools"
	"folioagent/pkg/errors"
)

type askFlags struct {
	userID          string
	token           string
	impersonationID string
	currency        string
	accountID       string
	timeframe       string
	mode            string
	stream          bool
}

func newAskCmd() *cobra.Command {
	var f askFlags

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one chat turn against the configured portfolio API and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := setup("cli")
			if err != nil {
				return err
			}
			defer p.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := buildAgent(ctx, p)
			if err != nil {
				return err
			}
			defer stack.close()

			req := agents.ChatRequest{
				Message:   strings.Join(args, " "),
				AccountID: f.accountID,
				Timeframe: f.timeframe,
				Mode:      f.mode,
			}
			tc := tools.ToolContext{
				UserID:          f.userID,
				BaseCurrency:    strings.ToUpper(f.currency),
				ImpersonationID: f.impersonationID,
				AccountID:       f.accountID,
				AccessToken:     f.token,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if f.stream {
				return printStream(enc, func(emit agents.Emitter) error {
					return stack.orchestrator.ChatStream(ctx, req, tc, emit)
				})
			}

			resp, err := stack.orchestrator.Chat(ctx, req, tc)
			if err != nil {
				return err
			}
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&f.userID, "user", "cli", "user id forwarded to the portfolio API")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("PORTFOLIO_API_TOKEN"), "bearer token for the portfolio API")
	cmd.Flags().StringVar(&f.impersonationID, "impersonation-id", "", "Impersonation-Id header value")
	cmd.Flags().StringVar(&f.currency, "currency", "", "base currency (defaults to AGENT_BASE_CURRENCY)")
	cmd.Flags().StringVar(&f.accountID, "account", "", "restrict the question to one account")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "", "timeframe hint, e.g. ytd")
	cmd.Flags().StringVar(&f.mode, "mode", agents.ModeFast, "fast or deep")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "print stream events as JSON lines")

	return cmd
}

// printStream writes every event as a JSON line. A stream that stops before a
// done or error event is reported as an error.
func printStream(enc *json.Encoder, run func(agents.Emitter) error) error {
	var (
		werr error
		last agents.Event
	)
	err := run(func(ev agents.Event) {
		last = ev
		if werr == nil {
			werr = enc.Encode(ev)
		}
	})
	if err == nil && !last.Terminal() {
		err = errors.New("agent stream ended without a done or error event")
	}
	return errors.Join(err, werr)
}
