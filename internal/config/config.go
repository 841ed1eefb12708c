// Package config provides YAML-based configuration loading for Spindle.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Spindle configuration, loaded from config.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Automation AutomationConfig `yaml:"automation"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the document store.
// Driver is "mysql" for a shared server or "sqlite" for a local file.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// Path is the sqlite database file, ignored for mysql.
	Path string `yaml:"path"`
}

// HTTPConfig holds settings for the API server.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// AutomationConfig tunes the rule engine.
type AutomationConfig struct {
	// MaxCascadeDepth bounds how many automation hops a single edit may
	// trigger before further cascades are dropped.
	MaxCascadeDepth int `yaml:"max_cascade_depth"`
	// Scheduler enables cron-triggered rules.
	Scheduler bool `yaml:"scheduler"`
}

// NotifyConfig holds credentials for outbound notification channels.
// Empty sections disable the channel; in-app notifications always work.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	// WebhookTimeoutSeconds bounds each outbound webhook call.
	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds"`
}

// SlackConfig configures the Slack notification channel.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordConfig configures the Discord notification channel.
type DiscordConfig struct {
	Token        string `yaml:"token"`
	WebhookID    string `yaml:"webhook_id"`
	WebhookToken string `yaml:"webhook_token"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists:
// a local sqlite database and the rule engine with stock limits.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" {
		c.Database.Database = "spindle"
	}
	if c.Database.Path == "" {
		c.Database.Path = "spindle.db"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Automation.MaxCascadeDepth == 0 {
		c.Automation.MaxCascadeDepth = 5
	}
	if c.Notify.WebhookTimeoutSeconds == 0 {
		c.Notify.WebhookTimeoutSeconds = 5
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be mysql or sqlite, got %q", c.Database.Driver))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Automation.MaxCascadeDepth < 1 {
		errs = append(errs, "automation.max_cascade_depth must be at least 1")
	}
	if (c.Notify.Discord.WebhookID == "") != (c.Notify.Discord.WebhookToken == "") {
		errs = append(errs, "notify.discord requires both webhook_id and webhook_token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
