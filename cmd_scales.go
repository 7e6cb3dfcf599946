package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/domain/scalecache"
)

func (c *cli) newScalesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scales",
		Short: "Inspect or reset the remembered template scales",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List remembered scales",
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
			entries, err := scalecache.New(s, logger).Entries(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, 0, len(entries))
			for n := range entries {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.4f\n", n, entries[n])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear [template]",
		Short: "Forget one remembered scale, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			s, err := c.openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			cache := scalecache.New(s, logger)
			if len(args) == 1 {
				if err := cache.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
				return nil
			}
			n, err := cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d scale(s)\n", n)
			return nil
		},
	})
	return cmd
}
