package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qabrowser/pkg/browser"
	"github.com/nextlevelbuilder/qabrowser/pkg/events"
)

func browseCmd() *cobra.Command {
	var (
		script        string
		axtree        bool
		screenshotDir string
	)
	cmd := &cobra.Command{
		Use:   "browse <url>",
		Short: "Open a URL, optionally run an interaction script, and print the observations",
		Example: `  qabrowser browse https://example.com --axtree
  qabrowser browse https://example.com/login --script 'fill("e2", "alice"); click("e3")'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown := initOTelExporter(ctx, cfg)
			defer shutdown()

			env := newEnv(cfg)
			defer env.Close()

			nav := events.NewNavigateAction(args[0])
			nav.ReturnAXTree = axtree
			actions := []events.Action{nav}
			if script != "" {
				ia := events.NewInteractAction(script)
				ia.ReturnAXTree = axtree
				actions = append(actions, ia)
			}

			dir := screenshotDir
			if dir == "" {
				dir = cfg.Browser.ScreenshotDir
			}
			var opts []browser.BrowseOption
			if dir != "" {
				opts = append(opts, browser.WithScreenshotDir(dir))
			}

			var seq events.Sequencer
			failed := false
			for _, a := range actions {
				obs, err := browser.Browse(ctx, env, a, opts...)
				if err != nil {
					return err
				}
				seq.Assign(&obs.Event)
				fmt.Println(obs.String())
				fmt.Println()
				failed = failed || obs.Error
			}
			if failed {
				return fmt.Errorf("browse reported an error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "interaction script to run after the page loads")
	cmd.Flags().BoolVar(&axtree, "axtree", false, "include the raw accessibility tree")
	cmd.Flags().StringVar(&screenshotDir, "screenshot-dir", "", "persist screenshots to this directory")
	return cmd
}
