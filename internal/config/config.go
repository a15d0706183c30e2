package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full server configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Secrets    SecretsConfig
	Gmail      GmailConfig
	Sync       SyncConfig
	Processing ProcessingConfig
	LLM        LLMConfig
	Token      TokenConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string
}

// SecretsConfig configures token-at-rest encryption.
type SecretsConfig struct {
	EncryptionKey string // 64 hex chars (32 bytes)
}

// GmailConfig configures mailbox pagination.
type GmailConfig struct {
	CountPageSize int64
	FetchPageSize int64
}

// SyncConfig configures the sync runner.
type SyncConfig struct {
	MonthsBack     int
	PageDelay      time.Duration
	StaleThreshold time.Duration
}

// ProcessingConfig configures the process runner and classifier gating.
type ProcessingConfig struct {
	BatchSize            int
	BatchDelay           time.Duration
	KeywordThreshold     float64
	AutoCreateConfidence float64
	MaxAttempts          int
}

// LLMConfig configures the Claude classifier. An empty APIKey disables it.
type LLMConfig struct {
	APIKey        string
	Model         string
	Endpoint      string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	RetryDelays   []time.Duration
	TruncateChars int
}

// TokenConfig configures the token broker.
type TokenConfig struct {
	RefreshBuffer time.Duration
}

// Enabled reports whether the LLM stage is configured.
func (c *LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// Load reads configuration from environment variables and an optional
// config file, applying defaults and validating the result.
func Load() (*Config, error) {
	return LoadWithViper(viper.New())
}

// LoadWithViper loads configuration using the provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("SUBTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := v.GetString("config_file"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Secrets: SecretsConfig{
			EncryptionKey: v.GetString("secrets.encryption_key"),
		},
		Gmail: GmailConfig{
			CountPageSize: v.GetInt64("gmail.count_page_size"),
			FetchPageSize: v.GetInt64("gmail.fetch_page_size"),
		},
		Sync: SyncConfig{
			MonthsBack:     v.GetInt("sync.months_back"),
			PageDelay:      v.GetDuration("sync.page_delay"),
			StaleThreshold: v.GetDuration("sync.stale_threshold"),
		},
		Processing: ProcessingConfig{
			BatchSize:            v.GetInt("processing.batch_size"),
			BatchDelay:           v.GetDuration("processing.batch_delay"),
			KeywordThreshold:     v.GetFloat64("processing.keyword_threshold"),
			AutoCreateConfidence: v.GetFloat64("processing.auto_create_confidence"),
			MaxAttempts:          v.GetInt("processing.max_attempts"),
		},
		LLM: LLMConfig{
			APIKey:        v.GetString("llm.api_key"),
			Model:         v.GetString("llm.model"),
			Endpoint:      v.GetString("llm.endpoint"),
			MaxTokens:     v.GetInt("llm.max_tokens"),
			Temperature:   v.GetFloat64("llm.temperature"),
			Timeout:       v.GetDuration("llm.timeout"),
			RetryDelays:   retryDelays(v.GetIntSlice("llm.retry_delays_seconds")),
			TruncateChars: v.GetInt("llm.truncate_chars"),
		},
		Token: TokenConfig{
			RefreshBuffer: v.GetDuration("token.refresh_buffer"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./subscription-tracker.db")

	v.SetDefault("gmail.count_page_size", 500)
	v.SetDefault("gmail.fetch_page_size", 100)

	v.SetDefault("sync.months_back", 12)
	v.SetDefault("sync.page_delay", "100ms")
	v.SetDefault("sync.stale_threshold", "30m")

	v.SetDefault("processing.batch_size", 50)
	v.SetDefault("processing.batch_delay", "100ms")
	v.SetDefault("processing.keyword_threshold", 0.3)
	v.SetDefault("processing.auto_create_confidence", 0.0)
	v.SetDefault("processing.max_attempts", 3)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-3-haiku-20240307")
	v.SetDefault("llm.endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "15s")
	v.SetDefault("llm.retry_delays_seconds", []int{10, 30, 90})
	v.SetDefault("llm.truncate_chars", 4000)

	v.SetDefault("token.refresh_buffer", "5m")
}

func retryDelays(seconds []int) []time.Duration {
	delays := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		delays[i] = time.Duration(s) * time.Second
	}
	return delays
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Secrets.EncryptionKey == "" {
		return errors.New("secrets.encryption_key is required")
	}
	if key, err := hex.DecodeString(c.Secrets.EncryptionKey); err != nil || len(key) != 32 {
		return errors.New("secrets.encryption_key must be 64 hex characters")
	}

	if c.Gmail.CountPageSize <= 0 || c.Gmail.CountPageSize > 500 {
		return fmt.Errorf("gmail.count_page_size must be in (0, 500], got %d", c.Gmail.CountPageSize)
	}
	if c.Gmail.FetchPageSize <= 0 || c.Gmail.FetchPageSize > 500 {
		return fmt.Errorf("gmail.fetch_page_size must be in (0, 500], got %d", c.Gmail.FetchPageSize)
	}

	if c.Sync.MonthsBack <= 0 {
		return fmt.Errorf("sync.months_back must be positive, got %d", c.Sync.MonthsBack)
	}

	if c.Processing.BatchSize <= 0 {
		return fmt.Errorf("processing.batch_size must be positive, got %d", c.Processing.BatchSize)
	}
	if c.Processing.KeywordThreshold < 0 || c.Processing.KeywordThreshold > 1 {
		return fmt.Errorf("processing.keyword_threshold must be in [0, 1], got %f", c.Processing.KeywordThreshold)
	}
	if c.Processing.MaxAttempts <= 0 {
		return fmt.Errorf("processing.max_attempts must be positive, got %d", c.Processing.MaxAttempts)
	}

	if c.LLM.Enabled() {
		if c.LLM.Model == "" {
			return errors.New("llm.model is required when llm.api_key is set")
		}
		if c.LLM.Endpoint == "" {
			return errors.New("llm.endpoint is required when llm.api_key is set")
		}
		if c.LLM.MaxTokens <= 0 {
			return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
		}
	}

	return nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
