package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/logging"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	verbose      bool
	quiet        bool
)

// hoistVersion is set by Execute from the build metadata.
var hoistVersion = "dev"

func Execute(version, commit, date string) error {
	hoistVersion = version

	var logCloser io.Closer
	rootCmd := &cobra.Command{
		Use:   "hoist",
		Short: "Coordinate web bundle and native updates for the desktop client",
		Long: `hoist detects newer builds of the application, stages and activates them,
and decides when it is safe to reload or relaunch.

Run 'hoist run' to host the client; the other commands inspect and drive the
same machinery by hand.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			// init writes the config file, so an existing broken one must not stop it.
			if cmd.Name() != "init" {
				loaded, err := loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			}
			var err error
			logCloser, err = logging.Setup(logging.Options{
				Level:   cfg.Log.Level,
				File:    cfg.Log.File,
				Output:  cmd.ErrOrStderr(),
				Verbose: verbose,
				Quiet:   quiet,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}
	rootCmd.SetVersionTemplate("hoist version {{.Version}} (" + commit + ", " + date + ")\n")

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to hoist config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	// Add subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd.Execute()
}

// cachedConfig is loaded once per invocation.
var cachedConfig *config.Config

func loadConfig() (*config.Config, error) {
	if cachedConfig != nil {
		return cachedConfig, nil
	}
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose && path != "" {
		fmt.Fprintf(os.Stderr, "Using config: %s\n", path)
	}
	cachedConfig = cfg
	return cfg, nil
}
