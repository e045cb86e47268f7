package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:7788", cfg.Address())
	assert.Equal(t, time.Second, cfg.Server.StreamGracePeriod)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.Interval)
	assert.Equal(t, 70, cfg.Stream.JPEGQuality)
	assert.Equal(t, 100, cfg.Agent.MaxSteps)
	assert.Equal(t, "google", cfg.LLM.DefaultProvider)
	assert.InDelta(t, 0.6, cfg.LLM.Temperature, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
browser:
  headless: true
stream:
  interval: 250ms
agent:
  max_steps: 20
  allowed_domains:
    - "*.example.com"
llm:
  default_provider: openai
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset fields keep their defaults")
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.Interval)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.Equal(t, []string{"*.example.com"}, cfg.Agent.AllowedDomains)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, 70, cfg.Stream.JPEGQuality)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [\n"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "stream:\n  jpeg_quality: 0\n"))
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "negative grace period",
			mutate:  func(c *Config) { c.Server.StreamGracePeriod = -time.Second },
			wantErr: "stream_grace_period",
		},
		{
			name:    "zero viewport",
			mutate:  func(c *Config) { c.Browser.ViewportWidth = 0 },
			wantErr: "viewport",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Stream.Interval = 0 },
			wantErr: "stream.interval",
		},
		{
			name:    "quality above 100",
			mutate:  func(c *Config) { c.Stream.JPEGQuality = 101 },
			wantErr: "jpeg_quality",
		},
		{
			name:    "no steps",
			mutate:  func(c *Config) { c.Agent.MaxSteps = 0 },
			wantErr: "max_steps",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.DefaultProvider = "nobody" },
			wantErr: "not a known provider",
		},
		{
			name:    "bad verbosity",
			mutate:  func(c *Config) { c.Logging.Verbosity = "loud" },
			wantErr: "verbosity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateDefaultsVerbosity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Verbosity = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "normal", cfg.Logging.Verbosity)
}
