// Package main is the standalone MCP task server binary. It exposes the
// codecommand task tools to MCP-compatible clients (Claude Desktop,
// Cursor, Codex, ...) over two transports:
//   - SSE (Server-Sent Events) at /sse for Claude Desktop, Cursor
//   - Streamable HTTP at /mcp for Codex
//
// The binary opens the store directly, so it works with or without a
// running codecommand server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/db"
	"github.com/codecommand/codecommand/internal/mcpserver"
	"github.com/codecommand/codecommand/internal/task/repository"
	taskservice "github.com/codecommand/codecommand/internal/task/service"
	"github.com/codecommand/codecommand/internal/worktree"
)

var (
	portFlag     = flag.Int("port", 0, "MCP server port (overrides config)")
	configFlag   = flag.String("config", "", "config directory path")
	logLevelFlag = flag.String("log-level", "", "log level override (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWithPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.MCP.Port = *portFlag
	}
	if *logLevelFlag != "" {
		cfg.Logging.Level = *logLevelFlag
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("starting mcp-server", zap.Int("port", cfg.MCP.Port))

	run(cfg, log)
}

// run wires the store and serves MCP until a shutdown signal arrives.
func run(cfg *config.Config, log *logger.Logger) {
	pool, err := db.Open(db.Options{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.SQLitePath(),
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	repo, _, err := repository.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		log.Error("failed to initialize repository", zap.Error(err))
		os.Exit(1)
	}

	worktrees, err := worktree.NewManager(worktree.Config{
		BasePath:      cfg.Worktree.BasePath,
		DefaultBranch: cfg.Worktree.DefaultBranch,
	}, log)
	if err != nil {
		log.Error("failed to initialize worktree manager", zap.Error(err))
		os.Exit(1)
	}

	tasks := taskservice.NewService(repo, worktrees, cfg, log)

	srv, cleanup, err := mcpserver.Provide(context.Background(), mcpserver.Config{Port: cfg.MCP.Port}, tasks, log)
	if err != nil {
		log.Error("failed to start MCP server", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("codecommand MCP server running on :%d\n", srv.Port())
	fmt.Printf("SSE endpoint: %s (for Claude Desktop, Cursor)\n", srv.SSEEndpoint())
	fmt.Printf("Streamable HTTP endpoint: %s (for Codex)\n", srv.StreamableHTTPEndpoint())

	waitForShutdown(log, cleanup)
}

// waitForShutdown blocks until SIGINT or SIGTERM, then runs cleanup.
func waitForShutdown(log *logger.Logger, cleanup func() error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mcp-server")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := cleanup(); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("shutdown timed out")
	}

	log.Info("mcp-server stopped")
}
