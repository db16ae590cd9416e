// Command liqmap_mcp serves the bridge tools over MCP stdio. Stdout carries
// the protocol, so logs go to stderr and the rotating log file.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgnsrekt/liqmap_bridge/internal/app"
	"github.com/dgnsrekt/liqmap_bridge/internal/config"
	"github.com/dgnsrekt/liqmap_bridge/internal/mcpserver"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := app.Build(ctx, cfg, false)
	if err != nil {
		slog.Error("failed to assemble bridge", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Debug("bridge close failed", "error", err)
		}
	}()

	srv := mcpserver.New(bridge.Service, mcpserver.SessionConfig{
		DefaultTimePeriod: cfg.MCPDefaultTimePeriod,
		AllowSimulated:    cfg.MCPAllowSimulated,
	}, app.Version)

	slog.Info("liqmap_mcp serving on stdio",
		"backend", cfg.Backend,
		"default_time_period", cfg.MCPDefaultTimePeriod,
		"allow_simulated_set", cfg.MCPAllowSimulated != nil,
	)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("liqmap_mcp server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
