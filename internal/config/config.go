// Package config loads the service configuration: YAML file, then
// BRIGHTTHREAD_* environment overrides, then validation. Secrets only come
// from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
	RateLimitRPM   int    `yaml:"rate_limit_rpm"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // "openai" or "anthropic"
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKey         string `yaml:"-"` // environment only, never from file
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:         ":8080",
			RequestTimeout: 120,
			RateLimitRPM:   60,
		},
		Database: DatabaseConfig{
			Path: "brightthread.db",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path (a missing file is fine), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Listen, "BRIGHTTHREAD_LISTEN")
	setInt(&cfg.Server.RateLimitRPM, "BRIGHTTHREAD_RATE_LIMIT_RPM")
	setString(&cfg.Database.Path, "BRIGHTTHREAD_DB_PATH")
	setString(&cfg.LLM.Provider, "BRIGHTTHREAD_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "BRIGHTTHREAD_LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "BRIGHTTHREAD_LLM_BASE_URL")
	setString(&cfg.Logging.Level, "BRIGHTTHREAD_LOG_LEVEL")
	setString(&cfg.Logging.Format, "BRIGHTTHREAD_LOG_FORMAT")

	// Provider-specific keys win over the generic one.
	setString(&cfg.LLM.APIKey, "BRIGHTTHREAD_LLM_API_KEY")
	switch cfg.LLM.Provider {
	case "anthropic":
		setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "openai":
		setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

// LLMTimeout returns the configured LLM timeout as a duration.
func (c Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
