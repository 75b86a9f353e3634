package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/hoist/internal/coordinator"
	"github.com/adamancini/hoist/internal/update"
)

var (
	checkOnly bool
	doUpdate  bool
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information and check for updates",
		Long: `Display the current hoist version and optionally check for or install
native updates.

Examples:
  hoist version              # Show current version
  hoist version --check      # Check if update is available
  hoist version --update     # Download and install latest version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !checkOnly && !doUpdate {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "hoist version %s\n", hoistVersion)
				return nil
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			checker := newGitHubChecker(cfg)
			if cfg.Native.BinaryPath == "" {
				path, err := currentBinary()
				if err != nil {
					return err
				}
				checker = checker.WithBinaryPath(path)
			}
			return runVersion(cmd.Context(), cmd.OutOrStdout(), checker)
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Check for updates without installing")
	cmd.Flags().BoolVar(&doUpdate, "update", false, "Update to the latest version")

	return cmd
}

// runVersion checks for a newer release and, with --update, installs it.
func runVersion(ctx context.Context, out io.Writer, checker *update.GitHubChecker) error {
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := checker.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Current version: %s\n", info.CurrentVersion)

	if !info.Available {
		_, _ = fmt.Fprintln(out, "Already running latest version")
		return nil
	}

	_, _ = fmt.Fprintf(out, "Latest version: %s available\n", info.LatestVersion)

	if !doUpdate {
		_, _ = fmt.Fprintln(out, "\nRelease notes:")
		_, _ = fmt.Fprintln(out, info.ReleaseNotes)
		_, _ = fmt.Fprintf(out, "\nRun 'hoist version --update' to install\n")
		return nil
	}

	return performUpdate(ctx, out, checker)
}

func performUpdate(ctx context.Context, out io.Writer, checker *update.GitHubChecker) error {
	manifest, err := checker.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	if manifest == nil {
		_, _ = fmt.Fprintln(out, "Already running latest version")
		return nil
	}

	_, _ = fmt.Fprintf(out, "\nDownloading %s...\n", manifest.Version())

	var progress coordinator.ProgressAccumulator
	err = manifest.DownloadAndInstall(ctx, func(event update.Event) {
		progress.Observe(event)
		if event.Kind == update.EventFinished {
			_, _ = fmt.Fprintf(out, "✓ Downloaded %s\n", humanize.Bytes(uint64(progress.Downloaded)))
		}
	})
	if err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}

	_, _ = fmt.Fprintln(out, "✓ Installation complete")
	_, _ = fmt.Fprintf(out, "\nSuccessfully updated to v%s!\n", manifest.Version())
	return nil
}

// currentBinary returns the running executable with symlinks resolved.
func currentBinary() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get current binary path: %w", err)
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve binary path: %w", err)
	}
	return path, nil
}
