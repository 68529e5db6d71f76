package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Media.SegmentSeconds)
	assert.Equal(t, "https://api.x.ai/v1", cfg.Oracle.BaseURL)
	assert.Equal(t, "grok-4-1-fast", cfg.Oracle.Model)
	assert.Equal(t, "alibaba/wan-2.5/video-extend", cfg.Generation.ModelPath)
	assert.Equal(t, 10, cfg.Generation.MaxConsecutiveErrs)
	assert.Equal(t, "sqlite", cfg.Analytics.Driver)
	assert.Equal(t, 5, cfg.Placement.MaxCandidates)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
logging:
  level: debug
  format: text
placement:
  buffer_before: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "15s", cfg.Placement.BufferBefore.String())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HALFTIME_SERVER_PORT", "7070")
	t.Setenv("HALFTIME_ORACLE_MODEL", "grok-vision")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "grok-vision", cfg.Oracle.Model)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "zero segment duration",
			mutate:  func(c *Config) { c.Media.SegmentSeconds = 0 },
			wantErr: "media.segment_seconds",
		},
		{
			name:    "unknown analytics driver",
			mutate:  func(c *Config) { c.Analytics.Driver = "oracle-db" },
			wantErr: "analytics.driver",
		},
		{
			name:    "zero generation timeout",
			mutate:  func(c *Config) { c.Generation.Timeout = 0 },
			wantErr: "generation.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVisionModelFallback(t *testing.T) {
	c := OracleConfig{Model: "grok-4-1-fast"}
	assert.Equal(t, "grok-4-1-fast", c.VisionModelOrDefault())

	c.VisionModel = "grok-2-vision"
	assert.Equal(t, "grok-2-vision", c.VisionModelOrDefault())
}
