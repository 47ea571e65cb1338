package mcpserver

import (
	"context"
	"sync"
	"time"

	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/task/service"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Port: 9090,
	}
}

// Provide starts the MCP server and returns a cleanup function to stop it.
func Provide(ctx context.Context, cfg Config, tasks *service.Service, log *logger.Logger) (*Server, func() error, error) {
	srv := New(cfg, tasks, log)
	if err := srv.Start(ctx); err != nil {
		return nil, nil, err
	}

	var stopOnce sync.Once
	cleanup := func() error {
		var stopErr error
		stopOnce.Do(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stopErr = srv.Stop(stopCtx)
		})
		return stopErr
	}

	return srv, cleanup, nil
}
