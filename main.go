package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sketchbook/internal/app"
	"sketchbook/internal/config"
	mcpserver "sketchbook/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// defaultConfigPath returns ~/.sketchbook/config.yaml if it exists.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".sketchbook", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func run() error {
	configPath := flag.String("config", defaultConfigPath(), "path to a YAML or TOML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config from %s: %w", *configPath, err)
		}
		cfg = loaded
	}

	// stdout carries the MCP protocol
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := app.New(*configPath, cfg, logger)
	if err := a.Startup(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	srv := mcpserver.New(mcpserver.Deps{
		App:     a,
		Emitter: a.Emitter(),
		Logger:  logger,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
