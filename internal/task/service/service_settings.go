package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/codecommand/codecommand/internal/common/config"
	"github.com/codecommand/codecommand/internal/task/models"
)

// Settings is the user-mutable slice of the configuration: executor
// default, notifications, analytics opt-in, identity, and editor. Server,
// database, and bus settings require a restart and are not exposed here.
type Settings struct {
	DefaultExecutor   string `json:"default_executor" yaml:"default_executor"`
	SoundAlerts       bool   `json:"sound_alerts" yaml:"sound_alerts"`
	PushNotifications bool   `json:"push_notifications" yaml:"push_notifications"`
	SoundFile         string `json:"sound_file" yaml:"sound_file"`
	AnalyticsEnabled  bool   `json:"analytics_enabled" yaml:"analytics_enabled"`
	AnalyticsUserID   string `json:"analytics_user_id" yaml:"analytics_user_id"`
	GitHubUsername    string `json:"github_username" yaml:"github_username"`
	GitHubEmail       string `json:"github_email" yaml:"github_email"`
	EditorType        string `json:"editor_type" yaml:"editor_type"`
	EditorCommand     string `json:"editor_command" yaml:"editor_command"`
}

// settingsState guards the mutable configuration sections. Reads take the
// read lock; an update swaps all sections wholesale under the write lock
// so readers never see a half-applied update.
type settingsState struct {
	mu       sync.RWMutex
	cfg      *config.Config
	savePath string
}

func newSettingsState(cfg *config.Config) *settingsState {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &settingsState{cfg: cfg}
}

// SetSettingsPath enables persisting settings updates to the given YAML
// file. Without a path, updates apply in memory only.
func (s *Service) SetSettingsPath(path string) {
	s.settings.mu.Lock()
	defer s.settings.mu.Unlock()
	s.settings.savePath = path
}

// GetSettings returns a snapshot of the current settings.
func (s *Service) GetSettings() Settings {
	s.settings.mu.RLock()
	defer s.settings.mu.RUnlock()
	return settingsFromConfig(s.settings.cfg)
}

// UpdateSettings validates and applies new settings, reconfigures
// analytics, and persists the result when a settings path is set.
func (s *Service) UpdateSettings(req Settings) (Settings, error) {
	if err := validateSettings(req); err != nil {
		return Settings{}, err
	}

	s.settings.mu.Lock()
	cfg := s.settings.cfg
	cfg.Executor.Default = req.DefaultExecutor
	cfg.Notifications = config.NotificationsConfig{
		SoundAlerts:       req.SoundAlerts,
		PushNotifications: req.PushNotifications,
		SoundFile:         req.SoundFile,
	}
	cfg.Analytics = config.AnalyticsConfig{
		Enabled: req.AnalyticsEnabled,
		UserID:  req.AnalyticsUserID,
	}
	cfg.GitHub = config.GitHubConfig{
		Username: req.GitHubUsername,
		Email:    req.GitHubEmail,
	}
	cfg.Editor = config.EditorConfig{
		Type:          req.EditorType,
		CustomCommand: req.EditorCommand,
	}
	applied := settingsFromConfig(cfg)
	savePath := s.settings.savePath
	analyticsCfg := cfg.Analytics
	s.settings.mu.Unlock()

	if s.analytics != nil {
		s.analytics.Reconfigure(analyticsCfg)
	}

	if savePath != "" {
		if err := writeSettingsFile(savePath, applied); err != nil {
			s.logger.Error("failed to persist settings", zap.String("path", savePath), zap.Error(err))
			return Settings{}, fmt.Errorf("failed to persist settings: %w", err)
		}
	}

	s.logger.Info("settings updated",
		zap.String("default_executor", applied.DefaultExecutor),
		zap.Bool("analytics_enabled", applied.AnalyticsEnabled))
	return applied, nil
}

func settingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DefaultExecutor:   cfg.Executor.Default,
		SoundAlerts:       cfg.Notifications.SoundAlerts,
		PushNotifications: cfg.Notifications.PushNotifications,
		SoundFile:         cfg.Notifications.SoundFile,
		AnalyticsEnabled:  cfg.Analytics.Enabled,
		AnalyticsUserID:   cfg.Analytics.UserID,
		GitHubUsername:    cfg.GitHub.Username,
		GitHubEmail:       cfg.GitHub.Email,
		EditorType:        cfg.Editor.Type,
		EditorCommand:     cfg.Editor.CustomCommand,
	}
}

func validateSettings(req Settings) error {
	if req.DefaultExecutor != "" {
		if _, err := models.ParseExecutorKind(req.DefaultExecutor); err != nil {
			return fmt.Errorf("validation: %v", err)
		}
	}
	if req.SoundFile != "" && !containsString(config.SoundFiles, req.SoundFile) {
		return fmt.Errorf("validation: sound_file must be one of: %s", strings.Join(config.SoundFiles, ", "))
	}
	if req.EditorType != "" && !containsString(config.EditorTypes, req.EditorType) {
		return fmt.Errorf("validation: editor_type must be one of: %s", strings.Join(config.EditorTypes, ", "))
	}
	return nil
}

func writeSettingsFile(path string, settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
