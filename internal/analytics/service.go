// Package analytics provides opt-in usage event tracking.
package analytics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/common/logger"
	"github.com/codecommand/codecommand/internal/events"
	"github.com/codecommand/codecommand/internal/events/bus"
)

// Service tracks usage events when the user has opted in. Settings updates
// swap the whole configuration at once, so reads take a snapshot under the
// read lock and never see a half-applied update.
type Service struct {
	mu       sync.RWMutex
	cfg      config.AnalyticsConfig
	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewService creates an analytics service. The event bus may be nil, in
// which case tracked events are only logged.
func NewService(cfg config.AnalyticsConfig, eventBus bus.EventBus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "analytics")),
	}
}

// Reconfigure replaces the analytics configuration wholesale.
func (s *Service) Reconfigure(cfg config.AnalyticsConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("analytics reconfigured", zap.Bool("enabled", cfg.Enabled))
}

// Enabled reports whether tracking is currently on.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Enabled
}

// Config returns a snapshot of the current configuration.
func (s *Service) Config() config.AnalyticsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// TrackEvent records a usage event. It is a no-op when tracking is off.
func (s *Service) TrackEvent(ctx context.Context, name string, properties map[string]any) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if !cfg.Enabled {
		return
	}

	data := make(map[string]any, len(properties)+1)
	for k, v := range properties {
		data[k] = v
	}
	if cfg.UserID != "" {
		data["user_id"] = cfg.UserID
	}

	s.logger.Debug("tracked event",
		zap.String("event", name),
		zap.Any("properties", data))

	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(name, "analytics", data)
	if err := s.eventBus.Publish(ctx, events.AnalyticsEvent, event); err != nil {
		s.logger.Warn("failed to publish analytics event",
			zap.String("event", name),
			zap.Error(err))
	}
}
