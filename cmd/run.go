package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qabrowser/internal/qarun"
	"github.com/nextlevelbuilder/qabrowser/internal/relay"
)

func runCmd() *cobra.Command {
	var (
		testID        string
		screenshotDir string
		serve         bool
		wait          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a QA plan and broadcast its progress",
		Long: "Run every step of a YAML plan in a fresh browser. Progress is broadcast to the\n" +
			"plan's test session; with --serve, observers can follow it at /ws/<test-id>.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			plan, err := qarun.LoadPlan(args[0])
			if err != nil {
				return err
			}
			if testID != "" {
				plan.TestID = qarun.NormalizeTestID(testID)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown := initOTelExporter(ctx, cfg)
			defer shutdown()

			rl := newRelay(cfg)
			defer rl.Close()

			if serve {
				stopServer, err := startServer(ctx, rl, cfg.Server.Addr, serverConfig(cfg))
				if err != nil {
					return err
				}
				defer stopServer()
			}

			if wait > 0 {
				fmt.Printf("Waiting %s for observers...\n", wait)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			env := newEnv(cfg)
			defer env.Close()

			dir := screenshotDir
			if dir == "" {
				dir = cfg.Browser.ScreenshotDir
			}
			runner := qarun.NewRunner(env, rl,
				qarun.WithLogger(slog.Default()),
				qarun.WithThumbnailMaxSide(cfg.Browser.ThumbnailMaxSide),
				qarun.WithScreenshotDir(dir),
			)
			res, err := runner.Run(ctx, plan)
			if err != nil {
				return err
			}

			for i, obs := range res.Observations {
				status := "ok"
				if obs.Error {
					status = "FAILED: " + obs.LastActionError
				}
				fmt.Printf("  %-32s %s\n", plan.Steps[i].Name, status)
			}
			fmt.Printf("%s: %d steps, %d failed\n", plan.TestID, len(res.Observations), res.Failed)
			if !res.Passed() {
				return fmt.Errorf("%d of %d steps failed", res.Failed, len(res.Observations))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&testID, "test-id", "", "override the plan's test id")
	cmd.Flags().StringVar(&screenshotDir, "screenshot-dir", "", "persist screenshots to this directory")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the relay so observers can follow the run")
	cmd.Flags().DurationVar(&wait, "wait", 0, "delay before the first step so observers can subscribe")
	return cmd
}

// startServer serves rl in the background. The returned func stops the
// server and waits for it to exit.
func startServer(ctx context.Context, rl *relay.Relay, addr string, cfg relay.ServerConfig) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := relay.NewServer(rl, cfg, slog.Default())

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(srvCtx, ln) }()
	fmt.Printf("Relay listening on %s\n", ln.Addr())

	return func() {
		cancel()
		if err := <-done; err != nil {
			slog.Warn("relay server stopped with error", "error", err)
		}
	}, nil
}
