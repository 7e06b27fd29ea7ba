package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qabrowser/internal/relay"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcast relay server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown := initOTelExporter(ctx, cfg)
			defer shutdown()
			watchConfig(ctx)

			srv := relay.NewServer(newRelay(cfg), serverConfig(cfg), slog.Default())
			return srv.ListenAndServe(ctx)
		},
	}
}
