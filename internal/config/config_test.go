package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func loadTestConfig(t *testing.T, overrides map[string]any) (*Config, error) {
	t.Helper()

	v := viper.New()
	v.Set("secrets.encryption_key", testKey)
	for key, value := range overrides {
		v.Set(key, value)
	}
	return LoadWithViper(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadTestConfig(t, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(500), cfg.Gmail.CountPageSize)
	assert.Equal(t, int64(100), cfg.Gmail.FetchPageSize)
	assert.Equal(t, 12, cfg.Sync.MonthsBack)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, 50, cfg.Processing.BatchSize)
	assert.Equal(t, 0.3, cfg.Processing.KeywordThreshold)
	assert.Equal(t, 0.0, cfg.Processing.AutoCreateConfidence)
	assert.Equal(t, 3, cfg.Processing.MaxAttempts)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second}, cfg.LLM.RetryDelays)
	assert.Equal(t, 4000, cfg.LLM.TruncateChars)
	assert.Equal(t, 5*time.Minute, cfg.Token.RefreshBuffer)

	// No API key means the paid stage is off
	assert.False(t, cfg.LLM.Enabled())
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]any
		wantErr   string
	}{
		{
			name:      "bad port",
			overrides: map[string]any{"server.port": 0},
			wantErr:   "invalid server port",
		},
		{
			name:      "short encryption key",
			overrides: map[string]any{"secrets.encryption_key": "abcd"},
			wantErr:   "64 hex characters",
		},
		{
			name:      "oversized page",
			overrides: map[string]any{"gmail.fetch_page_size": 1000},
			wantErr:   "fetch_page_size",
		},
		{
			name:      "llm enabled without model",
			overrides: map[string]any{"llm.api_key": "sk-test", "llm.model": ""},
			wantErr:   "llm.model is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadTestConfig(t, tc.overrides)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.wantErr), "error %q should mention %q", err, tc.wantErr)
		})
	}
}

func TestAddress(t *testing.T) {
	cfg, err := loadTestConfig(t, map[string]any{"server.host": "127.0.0.1", "server.port": 9090})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Address())
}
