// Package config loads qabrowser settings from a JSON5 file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Environment variables that override file values.
const (
	EnvAddr          = "QABROWSER_ADDR"
	EnvHeadless      = "QABROWSER_HEADLESS"
	EnvChromeBin     = "QABROWSER_CHROME_BIN"
	EnvLogLevel      = "QABROWSER_LOG_LEVEL"
	EnvScreenshotDir = "QABROWSER_SCREENSHOT_DIR"
	EnvOTLPEndpoint  = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Browser   BrowserConfig   `json:"browser"`
	Log       LogConfig       `json:"log"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ServerConfig configures the relay HTTP server.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	PingInterval   string   `json:"ping_interval"`
	PongWait       string   `json:"pong_wait"`
	WriteTimeout   string   `json:"write_timeout"`
	MaxMessageSize int64    `json:"max_message_size"`
	RateLimitRPM   int      `json:"rate_limit_rpm"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	MaxConnections int      `json:"max_connections,omitempty"`
}

// BrowserConfig configures the Chrome engine and Browse.
type BrowserConfig struct {
	Headless    bool   `json:"headless"`
	ChromeBin   string `json:"chrome_bin,omitempty"`
	NoSandbox   bool   `json:"no_sandbox"`
	StepTimeout string `json:"step_timeout"`
	// ScreenshotDir enables screenshot persistence when set.
	ScreenshotDir    string `json:"screenshot_dir,omitempty"`
	ThumbnailMaxSide int    `json:"thumbnail_max_side"`
	SnapshotMaxChars int    `json:"snapshot_max_chars"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol"` // grpc, http
	Insecure    bool              `json:"insecure"`
	ServiceName string            `json:"service_name"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			PingInterval:   "30s",
			PongWait:       "60s",
			WriteTimeout:   "10s",
			MaxMessageSize: 512 * 1024,
			RateLimitRPM:   120,
			RateLimitBurst: 20,
		},
		Browser: BrowserConfig{
			Headless:         true,
			StepTimeout:      "30s",
			ThumbnailMaxSide: 640,
			SnapshotMaxChars: 8000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "qabrowser",
		},
	}
}

// Load reads a JSON5 config file over the defaults, then applies environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides copies set environment variables into cfg.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		} else {
			slog.Warn("ignoring invalid env value", "name", EnvHeadless, "value", v)
		}
	}
	if v := os.Getenv(EnvChromeBin); v != "" {
		c.Browser.ChromeBin = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvScreenshotDir); v != "" {
		c.Browser.ScreenshotDir = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"server.ping_interval": c.Server.PingInterval,
		"server.pong_wait":     c.Server.PongWait,
		"server.write_timeout": c.Server.WriteTimeout,
		"browser.step_timeout": c.Browser.StepTimeout,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimitRPM < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, errors.New("server rate limits must not be negative"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	if c.Browser.ThumbnailMaxSide < 0 {
		errs = append(errs, errors.New("browser.thumbnail_max_side must not be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol: unknown protocol %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
	}
}

// StepTimeoutDuration returns the parsed step timeout.
func (b BrowserConfig) StepTimeoutDuration() time.Duration {
	return durationOr(b.StepTimeout, 30*time.Second)
}

// PingIntervalDuration returns the parsed ping interval.
func (s ServerConfig) PingIntervalDuration() time.Duration {
	return durationOr(s.PingInterval, 30*time.Second)
}

// PongWaitDuration returns the parsed read deadline.
func (s ServerConfig) PongWaitDuration() time.Duration {
	return durationOr(s.PongWait, 60*time.Second)
}

// WriteTimeoutDuration returns the parsed write deadline.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return durationOr(s.WriteTimeout, 10*time.Second)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
