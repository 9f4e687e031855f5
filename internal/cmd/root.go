// Package cmd implements the zipstream command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/zipstream/internal/config"
	"github.com/fruitsalade/zipstream/internal/logging"
	"github.com/fruitsalade/zipstream/internal/provider"
)

type globalOptions struct {
	providersFile string
	rootPath      string
	logLevel      string
}

// NewRootCmd creates the root zipstream command with all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "zipstream",
		Short: "Build archives from logical paths across storage providers",
		Long: `zipstream resolves logical paths against an ordered chain of providers
(fs, smb, s3, catalog) and streams the result as a zip, tar or tar.zst archive.

Without --providers a single fs provider rooted at --root is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Config{
				Level:      opts.logLevel,
				Format:     "console",
				OutputPath: "stderr",
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.providersFile, "providers", "", "YAML file listing the provider chain")
	rootCmd.PersistentFlags().StringVar(&opts.rootPath, "root", ".", "Root directory for the default fs provider")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newBuildCmd(opts))
	rootCmd.AddCommand(newResolveCmd(opts))
	rootCmd.AddCommand(newProvidersCmd(opts))

	return rootCmd
}

func (o *globalOptions) loader() provider.Loader {
	cfg := &config.Config{ProvidersFile: o.providersFile, LocalStoragePath: o.rootPath}
	return provider.Loader(cfg.ProviderLoader())
}

func (o *globalOptions) openRegistry(ctx context.Context) (*provider.Registry, error) {
	reg, err := provider.NewRegistry(ctx, o.loader())
	if err != nil {
		return nil, fmt.Errorf("open providers: %w", err)
	}
	return reg, nil
}
