// Package config provides configuration management for agentfleetd.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agentfleetd.
type Config struct {
	Server              ServerConfig              `mapstructure:"server"`
	Database            DatabaseConfig            `mapstructure:"database"`
	NATS                NATSConfig                `mapstructure:"nats"`
	Events              EventsConfig              `mapstructure:"events"`
	Agent               AgentConfig               `mapstructure:"agent"`
	Subscription        SubscriptionConfig        `mapstructure:"subscription"`
	Logging             logConfig                 `mapstructure:"logging"`
	RepositoryDiscovery RepositoryDiscoveryConfig `mapstructure:"repositoryDiscovery"`
	Worktree            WorktreeConfig            `mapstructure:"worktree"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds the embedded store's connection configuration.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	MaxConns int    `mapstructure:"maxConns"`
}

// NATSConfig holds optional NATS messaging configuration for the usage-stat
// side channel. An empty URL selects the in-memory event bus instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event-bus namespace configuration.
type EventsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// logConfig mirrors logger.Config but is kept as its own mapstructure
// target so config.Config does not depend on the logger package.
type logConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// RepositoryDiscoveryConfig holds configuration for local repository scanning.
type RepositoryDiscoveryConfig struct {
	Roots    []string `mapstructure:"roots"`
	MaxDepth int      `mapstructure:"maxDepth"`
}

// WorktreeConfig holds git worktree configuration.
type WorktreeConfig struct {
	BasePath        string `mapstructure:"basePath"`
	DefaultBranch   string `mapstructure:"defaultBranch"`
	CleanupOnRemove bool   `mapstructure:"cleanupOnRemove"`
}

// AgentConfig holds process-supervisor configuration.
type AgentConfig struct {
	// ExecutablePath is where the `claude` binary is discovered.
	ExecutablePath string `mapstructure:"executablePath"`
	// StopGracePeriod is a terminate->kill escalation window, in seconds. It
	// is validated at load but not passed to the Process Supervisor, which
	// escalates after its own fixed 5-second gracePeriod.
	StopGracePeriod int `mapstructure:"stopGracePeriodSeconds"`
}

func (a *AgentConfig) StopGracePeriodDuration() time.Duration {
	return time.Duration(a.StopGracePeriod) * time.Second
}

// SubscriptionConfig holds the Subscription Manager's heartbeat tuning.
type SubscriptionConfig struct {
	HeartbeatIntervalSeconds int `mapstructure:"heartbeatIntervalSeconds"`
	StaleThresholdSeconds    int `mapstructure:"staleThresholdSeconds"`
	MaxMessageSizeBytes      int `mapstructure:"maxMessageSizeBytes"`
}

func (s *SubscriptionConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

func (s *SubscriptionConfig) StaleThreshold() time.Duration {
	return time.Duration(s.StaleThresholdSeconds) * time.Second
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTFLEETD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.path", "./agentfleetd.db")
	v.SetDefault("database.maxConns", 1)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentfleetd")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")

	v.SetDefault("agent.executablePath", "claude")
	v.SetDefault("agent.stopGracePeriodSeconds", 5)

	v.SetDefault("subscription.heartbeatIntervalSeconds", 30)
	v.SetDefault("subscription.staleThresholdSeconds", 90)
	v.SetDefault("subscription.maxMessageSizeBytes", 1<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("repositoryDiscovery.roots", []string{})
	v.SetDefault("repositoryDiscovery.maxDepth", 5)

	v.SetDefault("worktree.basePath", "~/.agentfleetd/worktrees")
	v.SetDefault("worktree.defaultBranch", "main")
	v.SetDefault("worktree.cleanupOnRemove", true)
}

// Load reads configuration from environment variables, config file, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
// Environment variables use the prefix AGENTFLEETD_.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTFLEETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not convert camelCase keys to SNAKE_CASE; bind the
	// handful that diverge explicitly.
	_ = v.BindEnv("agent.executablePath", "AGENTFLEETD_AGENT_EXECUTABLE_PATH")
	_ = v.BindEnv("logging.level", "AGENTFLEETD_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "AGENTFLEETD_EVENTS_NAMESPACE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentfleetd/")

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

	return &cfg, nil
}

// validate checks that configuration fields are internally consistent.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.RepositoryDiscovery.MaxDepth <= 0 {
		errs = append(errs, "repositoryDiscovery.maxDepth must be positive")
	}
	if cfg.Agent.StopGracePeriod <= 0 {
		errs = append(errs, "agent.stopGracePeriodSeconds must be positive")
	}
	if cfg.Subscription.HeartbeatIntervalSeconds <= 0 {
		errs = append(errs, "subscription.heartbeatIntervalSeconds must be positive")
	}
	if cfg.Subscription.StaleThresholdSeconds <= 0 {
		errs = append(errs, "subscription.staleThresholdSeconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// LoggerConfig adapts the config-file logging section to logger.Config's shape.
func (c *Config) LoggerConfig() (level, format, outputPath string) {
	return c.Logging.Level, c.Logging.Format, c.Logging.OutputPath
}
