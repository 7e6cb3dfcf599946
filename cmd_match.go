package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/app"
	"github.com/soocke/pixel-scheduler-go/domain/capture"
	"github.com/soocke/pixel-scheduler-go/domain/scalecache"
)

func (c *cli) newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <frame.png> <template>",
		Short: "Match a template against a saved frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")

			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := c.openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			frame, err := capture.LoadFrame(args[0])
			if err != nil {
				return err
			}
			defer frame.Release()

			m := app.MatcherFor(cfg, capture.DirTemplates{Dir: cfg.TemplateDir}, scalecache.New(s, logger), logger)
			if th, ok, err := app.LoadThreshold(ctx, s, cfg.Threshold); err == nil && ok {
				m.SetThreshold(th)
			}

			out := cmd.OutOrStdout()
			name := args[1]
			if all {
				rs := m.MatchAll(ctx, frame, name)
				for _, r := range rs {
					printMatch(cmd, name, r)
				}
				fmt.Fprintf(out, "%d match(es) above %.2f\n", len(rs), m.Threshold())
				return nil
			}
			r, ok := m.Match(ctx, frame, name)
			if !ok {
				fmt.Fprintf(out, "no match for %s above %.2f\n", name, m.Threshold())
				return nil
			}
			printMatch(cmd, name, r)
			return nil
		},
	}
	cmd.Flags().BoolP("all", "a", false, "List every deduplicated occurrence")
	return cmd
}

func printMatch(cmd *cobra.Command, name string, r capture.MatchResult) {
	ctr := r.Center()
	fmt.Fprintf(cmd.OutOrStdout(), "%s at (%d,%d) size %dx%d center (%d,%d) similarity %.3f scale %.2f\n",
		name, r.X, r.Y, r.Width, r.Height, ctr.X, ctr.Y, r.Similarity, r.Scale)
}
