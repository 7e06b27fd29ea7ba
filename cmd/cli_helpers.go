package cmd

import (
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/qabrowser/internal/config"
	"github.com/nextlevelbuilder/qabrowser/internal/relay"
	"github.com/nextlevelbuilder/qabrowser/pkg/browser"
)

const (
	envConfigPath     = "QABROWSER_CONFIG"
	defaultConfigPath = "qabrowser.json5"
)

// resolveConfigPath returns --config, then $QABROWSER_CONFIG, then the
// default file in the working directory.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv(envConfigPath); v != "" {
		return v
	}
	return defaultConfigPath
}

// loadConfig loads the config file, applies the global log flags and
// installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serverConfig maps the file config onto the relay server.
func serverConfig(cfg *config.Config) relay.ServerConfig {
	return relay.ServerConfig{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Conn: relay.ConnOptions{
			PingInterval:   cfg.Server.PingIntervalDuration(),
			PongWait:       cfg.Server.PongWaitDuration(),
			WriteTimeout:   cfg.Server.WriteTimeoutDuration(),
			MaxMessageSize: cfg.Server.MaxMessageSize,
		},
		RateLimitRPM:   cfg.Server.RateLimitRPM,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		MaxConnections: cfg.Server.MaxConnections,
	}
}

func newRelay(cfg *config.Config) *relay.Relay {
	return relay.New(relay.NewRegistry(),
		relay.WithLogger(slog.Default()),
		relay.WithSendTimeout(cfg.Server.WriteTimeoutDuration()),
	)
}

// newEnv builds a Chrome-backed environment from the browser config.
func newEnv(cfg *config.Config) *browser.Env {
	snap := browser.DefaultSnapshotOptions()
	if cfg.Browser.SnapshotMaxChars > 0 {
		snap.MaxChars = cfg.Browser.SnapshotMaxChars
	}
	engine := browser.NewRodEngine(
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithBinPath(cfg.Browser.ChromeBin),
		browser.WithNoSandbox(cfg.Browser.NoSandbox),
		browser.WithSnapshotOptions(snap),
		browser.WithLogger(slog.Default()),
	)
	return browser.NewEnv(engine,
		browser.WithStepTimeout(cfg.Browser.StepTimeoutDuration()),
		browser.WithEnvLogger(slog.Default()),
	)
}
