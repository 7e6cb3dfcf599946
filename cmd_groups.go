package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soocke/pixel-scheduler-go/config"
)

func (c *cli) newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "Print the resolved task groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.load(cmd)
			if err != nil {
				return err
			}
			defs, err := cfg.ResolveGroups()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\tpriority %d\tindex %s\n", d.Name, d.Priority, d.IndexTemplate)
				for i, st := range d.Steps {
					fmt.Fprintf(tw, "  %d.\t%s\t%s\n", i+1, st.Template, describeStep(st))
				}
			}
			fmt.Fprintf(tw, "focus sequence\t%v\t\n", cfg.Reward.FocusSequence)
			return tw.Flush()
		},
	}
}

func describeStep(st config.Step) string {
	out := st.Kind.String()
	if st.Kind == config.StepCustomWait {
		out += fmt.Sprintf(" %s", st.Wait)
		if st.WaitOnMiss {
			out += " (also on miss)"
		}
	}
	if st.PickLeftmost {
		out += ", leftmost"
	}
	if st.CornerTaps > 0 {
		out += fmt.Sprintf(", %d corner rounds", st.CornerTaps)
	}
	return out
}
