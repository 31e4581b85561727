package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "RULEBOOK_PATH", "INSIGHTS_URL", "INSIGHTS_TIMEOUT", "RATE_LIMIT_RPS"} {
		setEnv(t, k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
	assert.Equal(t, DefaultInsightsTimeout, cfg.InsightsTimeout)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.InsightsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "LOG_FORMAT", "json")
	setEnv(t, "RULEBOOK_PATH", "/etc/dealscope/rulebook.yaml")
	setEnv(t, "INSIGHTS_URL", "https://insights.internal/v1/generate")
	setEnv(t, "INSIGHTS_TIMEOUT", "3s")
	setEnv(t, "RATE_LIMIT_RPS", "25")
	setEnv(t, "CORS_ALLOWED_ORIGINS", "https://dash.example.com, https://ops.example.com,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/etc/dealscope/rulebook.yaml", cfg.RulebookPath)
	assert.Equal(t, 3*time.Second, cfg.InsightsTimeout)
	assert.Equal(t, 25, cfg.RateLimitRPS)
	assert.True(t, cfg.InsightsEnabled())
	assert.Equal(t, []string{"https://dash.example.com", "https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	setEnv(t, "INSIGHTS_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultInsightsTimeout, cfg.InsightsTimeout)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Port: "8080", Env: "development", LogFormat: "text", RateLimitRPS: 10}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT is required"},
		{"bad port", func(c *Config) { c.Port = "http" }, "PORT must be"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"negative rate", func(c *Config) { c.RateLimitRPS = -1 }, "RATE_LIMIT_RPS"},
		{"relative insights url", func(c *Config) { c.InsightsURL = "/generate"; c.InsightsTimeout = time.Second }, "INSIGHTS_URL"},
		{"zero insights timeout", func(c *Config) { c.InsightsURL = "http://x:9000"; c.InsightsTimeout = 0 }, "INSIGHTS_TIMEOUT"},
		{"production needs database", func(c *Config) { c.Env = "production" }, "DATABASE_URL"},
		{"production with database", func(c *Config) { c.Env = "production"; c.DatabaseURL = "postgres://localhost/dealscope" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	setEnv(t, "DEALSCOPE_TEST_INT", "notanumber")
	assert.Equal(t, int64(7), getEnvInt64("DEALSCOPE_TEST_INT", 7))

	setEnv(t, "DEALSCOPE_TEST_INT", "42")
	assert.Equal(t, int64(42), getEnvInt64("DEALSCOPE_TEST_INT", 7))

	assert.Equal(t, "fallback", getEnv("DEALSCOPE_TEST_UNSET", "fallback"))
}
