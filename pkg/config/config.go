// Package config loads webpilot's YAML configuration and holds the LLM
// provider registry used to resolve models, endpoints and credentials.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Stream  StreamConfig  `yaml:"stream" json:"stream"`
	Agent   AgentConfig   `yaml:"agent" json:"agent"`
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// StreamGracePeriod is how long a new stream connection waits before
	// deciding whether a run is active.
	StreamGracePeriod time.Duration `yaml:"stream_grace_period" json:"stream_grace_period"`

	// WriteTimeout bounds a single websocket frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for an in-flight run.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BrowserConfig configures the browser launched for each run.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" json:"headless"`
	ViewportWidth  int    `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" json:"viewport_height"`
	Channel        string `yaml:"channel" json:"channel"` // e.g. "chrome"; empty uses bundled Chromium
	Install        bool   `yaml:"install" json:"install"` // download driver and browsers on startup
}

// StreamConfig configures screenshot streaming. QueueSize caps the frames
// waiting for one observer.
type StreamConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval"`
	JPEGQuality int           `yaml:"jpeg_quality" json:"jpeg_quality"`
	QueueSize   int           `yaml:"queue_size" json:"queue_size"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxSteps          int           `yaml:"max_steps" json:"max_steps"`
	MaxActionsPerStep int           `yaml:"max_actions_per_step" json:"max_actions_per_step"`
	MaxFailures       int           `yaml:"max_failures" json:"max_failures"`
	MaxInputTokens    int           `yaml:"max_input_tokens" json:"max_input_tokens"`
	StepTimeout       time.Duration `yaml:"step_timeout" json:"step_timeout"`
	AllowedDomains    []string      `yaml:"allowed_domains" json:"allowed_domains"`
}

// LLMConfig holds defaults applied to run requests.
type LLMConfig struct {
	DefaultProvider string  `yaml:"default_provider" json:"default_provider"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Dir is the log directory; empty means ~/.webpilot/logs
	Dir string `yaml:"dir" json:"dir"`

	// Verbosity is one of: quiet, normal, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              7788,
			StreamGracePeriod: time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:       false,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Stream: StreamConfig{
			Interval:    500 * time.Millisecond,
			JPEGQuality: 70,
			QueueSize:   256,
		},
		Agent: AgentConfig{
			MaxSteps:          100,
			MaxActionsPerStep: 10,
			MaxFailures:       3,
			MaxInputTokens:    128000,
			StepTimeout:       2 * time.Minute,
		},
		LLM: LLMConfig{
			DefaultProvider: "google",
			Temperature:     0.6,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.StreamGracePeriod < 0 {
		return fmt.Errorf("server.stream_grace_period cannot be negative")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	if c.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive")
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be between 1 and 100, got %d", c.Stream.JPEGQuality)
	}
	if c.Stream.QueueSize <= 0 {
		return fmt.Errorf("stream.queue_size must be positive")
	}

	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive")
	}
	if c.Agent.MaxActionsPerStep <= 0 {
		return fmt.Errorf("agent.max_actions_per_step must be positive")
	}
	if c.Agent.MaxFailures <= 0 {
		return fmt.Errorf("agent.max_failures must be positive")
	}
	if c.Agent.MaxInputTokens < 0 {
		return fmt.Errorf("agent.max_input_tokens cannot be negative")
	}

	if _, ok := LookupProvider(c.LLM.DefaultProvider); !ok {
		return fmt.Errorf("llm.default_provider %q is not a known provider", c.LLM.DefaultProvider)
	}

	switch c.Logging.Verbosity {
	case "":
		c.Logging.Verbosity = "normal"
	case "quiet", "normal", "debug":
	default:
		return fmt.Errorf("invalid logging.verbosity: %s (must be quiet, normal or debug)", c.Logging.Verbosity)
	}

	return nil
}
