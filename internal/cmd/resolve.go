package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/zipstream/internal/node"
)

var errNoPaths = errors.New("at least one path is required")

func newResolveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [paths...]",
		Short: "Show which provider resolves each path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoPaths
			}

			ctx := cmd.Context()
			reg, err := opts.openRegistry(ctx)
			if err != nil {
				return err
			}
			defer reg.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tPROVIDER\tKIND")
			for _, p := range args {
				res, err := reg.Resolve(ctx, p)
				if err != nil {
					return err
				}
				if !res.Found {
					fmt.Fprintf(tw, "%s\t-\tnot found\n", p)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p, res.Provider, node.Kind(res.Node))
			}
			return tw.Flush()
		},
	}
}
