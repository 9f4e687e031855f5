package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/zipstream/internal/archive"
)

func newBuildCmd(opts *globalOptions) *cobra.Command {
	var (
		output      string
		format      string
		maxDepth    int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "build [paths...]",
		Short: "Build an archive from logical paths",
		Long: `Resolve each path against the provider chain and write one archive.

Paths no provider knows are skipped. Use -o - to write to stdout.
On failure a partially written output file is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := archive.ParseFormat(format)
			if err != nil {
				return err
			}
			if output == "" {
				output = "download." + f.Extension()
			}

			ctx := cmd.Context()
			reg, err := opts.openRegistry(ctx)
			if err != nil {
				return err
			}
			defer reg.Close()

			var w io.Writer = cmd.OutOrStdout()
			var file *os.File
			if output != "-" {
				file, err = os.Create(output)
				if err != nil {
					return err
				}
				w = file
			}

			sink, err := archive.NewSink(f, w)
			if err != nil {
				return err
			}

			agg := archive.New(reg,
				archive.WithMaxDepth(maxDepth),
				archive.WithResolveConcurrency(concurrency))
			stats, buildErr := agg.Build(ctx, args, sink)

			if file != nil {
				closeErr := file.Close()
				if buildErr == nil {
					buildErr = closeErr
				}
				if buildErr != nil {
					os.Remove(output)
				}
			}
			if buildErr != nil {
				return fmt.Errorf("build archive: %w", buildErr)
			}

			if output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s: %d entries, %d bytes, %d of %d paths skipped\n",
					output, stats.Entries, stats.Bytes, stats.Skipped, stats.Requested)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default download.<ext>, - for stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "zip", "Archive format: zip, tar, tar.zst")
	cmd.Flags().IntVar(&maxDepth, "max-depth", archive.DefaultMaxDepth, "Maximum directory nesting")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Paths resolved in parallel")

	return cmd
}
