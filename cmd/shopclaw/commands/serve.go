package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/gateway"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

// newServeCmd creates the `shopclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and messaging channels",
		Long: `Start shopclaw as a daemon: the HTTP API (web chat, catalog search,
order admin, Meta webhooks), the enabled channels and the background jobs.

Examples:
  shopclaw serve
  shopclaw serve --addr 127.0.0.1:9000
  shopclaw serve --config ./config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides gateway.address)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Gateway.Address = addr
	}

	logger := newLogger(cmd, cfg.Logging, os.Stdout)
	copilot.AuditSecrets(cfg, logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Create assistant ──
	assistant, err := copilot.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}
	if err := assistant.Start(ctx); err != nil {
		assistant.Stop()
		return fmt.Errorf("failed to start: %w", err)
	}

	// ── Start gateway ──
	gw := gateway.New(assistant, cfg.Gateway, logger)
	if err := gw.Start(ctx); err != nil {
		assistant.Stop()
		return fmt.Errorf("starting gateway: %w", err)
	}

	logger.Info("shopclaw running. Press Ctrl+C to stop.",
		"shop", cfg.Name,
		"address", cfg.Gateway.Address,
		"whatsapp", cfg.Channels.WhatsApp.Effective().Mode,
		"instagram", cfg.Channels.Instagram.Mode,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	done := make(chan struct{})
	go func() {
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", "error", err)
		}
		cancel()
		assistant.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
	}
	return nil
}
