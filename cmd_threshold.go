package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/app"
)

func (c *cli) newThresholdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Show or persist the similarity threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			s, err := c.openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			v, stored, err := app.LoadThreshold(cmd.Context(), s, cfg.Threshold)
			if err != nil {
				return err
			}
			src := "config"
			if stored {
				src = "store"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f (%s)\n", v, src)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Persist a threshold in [0.60, 1.00]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("threshold %q: %w", args[0], err)
			}
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			s, err := c.openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			applied, err := app.SaveThreshold(cmd.Context(), s, v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "threshold set to %.2f\n", applied)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the persisted threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			s, err := c.openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			return app.ClearThreshold(cmd.Context(), s)
		},
	})
	return cmd
}
