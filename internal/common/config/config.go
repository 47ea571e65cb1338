// Package config provides configuration management for codecommand.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for codecommand.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Worktree      WorktreeConfig      `mapstructure:"worktree"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Analytics     AnalyticsConfig     `mapstructure:"analytics"`
	GitHub        GitHubConfig        `mapstructure:"github"`
	Editor        EditorConfig        `mapstructure:"editor"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	MCP           MCPConfig           `mapstructure:"mcp"`

	// SourcePath is the config file the loader read, or the default
	// location when none was found. Settings updates persist here.
	SourcePath string `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
// Driver selects the backend: "sqlite" (default, Path) or "postgres" (DSN fields).
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// ExecutorConfig holds coding-agent executor configuration.
type ExecutorConfig struct {
	// Default is the executor kind used when an attempt does not name one:
	// echo, claude, amp, gemini, or opencode.
	Default string `mapstructure:"default"`

	// ProfilesPath points to an optional YAML file with per-executor
	// command overrides. Empty means no overrides.
	ProfilesPath string `mapstructure:"profilesPath"`
}

// MonitorConfig holds execution monitor configuration.
type MonitorConfig struct {
	// PollIntervalMs is the sleep between monitor cycles, in milliseconds.
	PollIntervalMs int `mapstructure:"pollIntervalMs"`
}

// WorktreeConfig holds git worktree configuration for attempt isolation.
type WorktreeConfig struct {
	BasePath      string `mapstructure:"basePath"`      // Base directory for worktrees (default: ~/.codecommand/worktrees)
	DefaultBranch string `mapstructure:"defaultBranch"` // Default base branch (default: main)
}

// NotificationsConfig holds user-facing notification settings.
type NotificationsConfig struct {
	SoundAlerts       bool   `mapstructure:"soundAlerts"`
	PushNotifications bool   `mapstructure:"pushNotifications"`
	SoundFile         string `mapstructure:"soundFile"`
}

// AnalyticsConfig holds the analytics opt-in and identity.
type AnalyticsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	UserID  string `mapstructure:"userId"`
}

// GitHubConfig carries the user identity attached to error reports.
type GitHubConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
}

// EditorConfig selects the editor used to open worktrees from the UI.
type EditorConfig struct {
	Type          string `mapstructure:"type"`
	CustomCommand string `mapstructure:"customCommand"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// MCPConfig holds the MCP task server settings.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SoundFiles are the bundled alert sounds a config may select.
var SoundFiles = []string{
	"abstract-sound1",
	"abstract-sound2",
	"abstract-sound3",
	"abstract-sound4",
	"cow-mooing",
	"phone-vibration",
	"rooster",
}

// EditorTypes are the editors the open-in-editor action understands.
var EditorTypes = []string{"vscode", "cursor", "windsurf", "intellij", "zed", "custom"}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// PollInterval returns the monitor poll interval as a time.Duration.
func (m *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMs) * time.Millisecond
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// JSON under Kubernetes or CODECOMMAND_ENV=production, text otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CODECOMMAND_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8350)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - sqlite file next to the asset dir
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "~/.codecommand/db.sqlite")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "codecommand")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "codecommand")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "codecommand")
	v.SetDefault("nats.maxReconnects", 10)

	// Executor defaults
	v.SetDefault("executor.default", "claude")
	v.SetDefault("executor.profilesPath", "")

	// Monitor defaults
	v.SetDefault("monitor.pollIntervalMs", 1000)

	// Worktree defaults
	v.SetDefault("worktree.basePath", "~/.codecommand/worktrees")
	v.SetDefault("worktree.defaultBranch", "main")

	// Notification defaults
	v.SetDefault("notifications.soundAlerts", true)
	v.SetDefault("notifications.pushNotifications", false)
	v.SetDefault("notifications.soundFile", "abstract-sound4")

	// Analytics defaults - opt-in, identity generated on first run
	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.userId", "")

	// GitHub identity defaults
	v.SetDefault("github.username", "")
	v.SetDefault("github.email", "")

	// Editor defaults
	v.SetDefault("editor.type", "vscode")
	v.SetDefault("editor.customCommand", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// MCP task server defaults
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 9090)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CODECOMMAND_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/codecommand/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("CODECOMMAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings where env var naming differs from config key naming.
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion.
	_ = v.BindEnv("server.port", "BACKEND_PORT", "PORT", "CODECOMMAND_SERVER_PORT")
	_ = v.BindEnv("database.path", "CODECOMMAND_DATABASE_PATH")
	_ = v.BindEnv("monitor.pollIntervalMs", "CODECOMMAND_MONITOR_POLL_INTERVAL_MS")
	_ = v.BindEnv("executor.profilesPath", "CODECOMMAND_EXECUTOR_PROFILES_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/codecommand/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.SourcePath = v.ConfigFileUsed()
	if cfg.SourcePath == "" {
		cfg.SourcePath = "config.yaml"
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be sqlite or postgres")
	}

	if cfg.Monitor.PollIntervalMs <= 0 {
		errs = append(errs, "monitor.pollIntervalMs must be positive")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port < 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 0 and 65535")
	}

	if cfg.Notifications.SoundFile != "" && !contains(SoundFiles, cfg.Notifications.SoundFile) {
		errs = append(errs, fmt.Sprintf("notifications.soundFile must be one of: %s", strings.Join(SoundFiles, ", ")))
	}

	if cfg.Editor.Type != "" && !contains(EditorTypes, cfg.Editor.Type) {
		errs = append(errs, fmt.Sprintf("editor.type must be one of: %s", strings.Join(EditorTypes, ", ")))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// IsPostgres reports whether the postgres driver is selected.
func (d *DatabaseConfig) IsPostgres() bool {
	return strings.ToLower(d.Driver) == "postgres"
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// SQLitePath returns the sqlite file path with a leading ~ expanded.
func (d *DatabaseConfig) SQLitePath() string {
	return ExpandHome(d.Path)
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return home + path[1:]
	}
	return path
}
