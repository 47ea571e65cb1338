// Package main is the codecommand server. One binary runs the REST API,
// the websocket event stream, the MCP task server, and the execution
// monitor over a shared store and event bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codecommand/codecommand/internal/analytics"
	"github.com/codecommand/codecommand/internal/attempt"
	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/common/httpmw"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/db"
	"github.com/codecommand/codecommand/internal/events"
	"github.com/codecommand/codecommand/internal/execution"
	"github.com/codecommand/codecommand/internal/executor"
	"github.com/codecommand/codecommand/internal/mcpserver"
	"github.com/codecommand/codecommand/internal/streaming"
	"github.com/codecommand/codecommand/internal/task/handlers"
	"github.com/codecommand/codecommand/internal/task/repository"
	taskservice "github.com/codecommand/codecommand/internal/task/service"
	"github.com/codecommand/codecommand/internal/tracing"
	"github.com/codecommand/codecommand/internal/worktree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting codecommand")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus: NATS when configured, in-memory otherwise.
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()
	eventBus := providedBus.Bus

	// Storage.
	pool, err := db.Open(db.Options{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.SQLitePath(),
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer pool.Close()

	repo, _, err := repository.Provide(pool.Writer(), pool.Reader())
	if err != nil {
		log.Fatal("failed to initialize repository", zap.Error(err))
	}
	log.Info("database ready",
		zap.String("driver", pool.DriverName()))

	// Execution engine.
	registry := execution.NewRegistry(log)

	worktrees, err := worktree.NewManager(worktree.Config{
		BasePath:      cfg.Worktree.BasePath,
		DefaultBranch: cfg.Worktree.DefaultBranch,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize worktree manager", zap.Error(err))
	}

	profiles, err := executor.LoadProfiles(config.ExpandHome(cfg.Executor.ProfilesPath))
	if err != nil {
		log.Fatal("failed to load executor profiles", zap.Error(err))
	}
	factory := executor.NewFactory(profiles)

	analyticsSvc := analytics.NewService(cfg.Analytics, eventBus, log)

	attemptSvc := attempt.NewService(repo, registry, worktrees, factory, eventBus, log)
	attemptSvc.SetAnalytics(analyticsSvc)

	taskSvc := taskservice.NewService(repo, worktrees, cfg, log)
	taskSvc.SetAnalytics(analyticsSvc)
	taskSvc.SetSettingsPath(cfg.SourcePath)

	// Running rows left by a previous run have no live child to reap.
	if _, err := attemptSvc.RecoverOrphans(ctx); err != nil {
		log.Fatal("failed to recover orphaned executions", zap.Error(err))
	}

	monitor := attempt.NewMonitor(attemptSvc, cfg.Monitor.PollInterval(), log)
	hub := streaming.NewHub(eventBus, log)

	// HTTP surface.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.RequestLogger(log, "api"))
	router.Use(httpmw.OtelTracing("codecommand-api"))

	handlers.RegisterRoutes(router, taskSvc, attemptSvc, log)
	hub.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// MCP task server on its own port, sharing the task service.
	if cfg.MCP.Enabled {
		mcpSrv, mcpCleanup, err := mcpserver.Provide(ctx, mcpserver.Config{Port: cfg.MCP.Port}, taskSvc, log)
		if err != nil {
			log.Fatal("failed to start MCP server", zap.Error(err))
		}
		defer func() {
			if err := mcpCleanup(); err != nil {
				log.Error("MCP server shutdown error", zap.Error(err))
			}
		}()
		log.Info("MCP task server ready",
			zap.String("sse", mcpSrv.SSEEndpoint()),
			zap.String("streamable_http", mcpSrv.StreamableHTTPEndpoint()))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		log.Info("API server listening",
			zap.String("addr", server.Addr),
			zap.String("health", "/health"),
			zap.String("rest", "/api/v1"),
			zap.String("stream", "/api/v1/stream/attempts/:id/ws"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down codecommand")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", zap.Error(err))
	}

	// Kill whatever is still running before the process exits.
	registry.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", zap.Error(err))
	}

	log.Info("codecommand stopped")
}

// corsMiddleware allows the local frontend and websocket upgrades from
// any origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
