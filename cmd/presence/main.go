package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/presence/config"
	"github.com/orchestra-mcp/presence/providers"
	"github.com/orchestra-mcp/presence/src/logging"
)

func main() {
	envErr := config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if envErr != nil {
		logger.Warn().Msg("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plugin := providers.NewPresencePlugin(cfg, logger)
	if err := plugin.Activate(); err != nil {
		logger.Fatal().Err(err).Msg("activate failed")
	}
	if err := plugin.Serve(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("shut down cleanly")
}
