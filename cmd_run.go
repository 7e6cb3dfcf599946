package main

import (
	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/app"
)

func (c *cli) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Arm the key trigger and run the scheduler on demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			start, _ := cmd.Flags().GetBool("start")

			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			container, err := app.BuildContainer(ctx, cfg, logger, app.Options{
				ConfigPath: c.configPath,
				DryRun:     dryRun,
				Stdin:      c.stdin,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := container.Close(); err != nil {
					logger.Warn("close failed", "error", err)
				}
			}()
			return app.Run(ctx, container, start)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Log taps instead of injecting them")
	cmd.Flags().Bool("start", false, "Start a worker immediately")
	return cmd
}
