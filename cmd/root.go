// Package cmd implements the qabrowser command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qabrowser/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// levelVar backs the default logger so config reloads can change the level.
	levelVar = new(slog.LevelVar)
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qabrowser",
		Short:         "Drive a browser for QA tests and relay observations to live observers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $"+envConfigPath+" or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(browseCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())
	return root
}

// setupLogging installs the default slog logger for lc.
func setupLogging(lc config.LogConfig) error {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	levelVar.Set(level)

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	switch lc.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("log.format: unknown format %q", lc.Format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// watchConfig follows the config file until ctx is done and applies log
// level changes. --log-level pins the level.
func watchConfig(ctx context.Context) {
	path := resolveConfigPath()
	if _, err := os.Stat(path); err != nil {
		return
	}
	w, err := config.NewWatcher(path, slog.Default())
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return
	}
	w.OnChange(func(cfg *config.Config) {
		if logLevel != "" {
			return
		}
		level, err := config.ParseLevel(cfg.Log.Level)
		if err != nil {
			return
		}
		if level != levelVar.Level() {
			levelVar.Set(level)
			slog.Info("log level changed", "level", level.String())
		}
	})
	if err := w.Start(); err != nil {
		slog.Warn("config watcher failed to start", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
}
