package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProvidersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured provider chain in resolution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer reg.Close()

			regs, err := reg.Providers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tTYPE")
			for i, r := range regs {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, r.Name, r.Type)
			}
			return tw.Flush()
		},
	}
}
