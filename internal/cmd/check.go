package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/hoist/internal/webbundle"
)

// checkResult is the outcome of a manual web channel check.
type checkResult struct {
	ManifestURL string `json:"manifest_url" yaml:"manifest_url"`
	Active      string `json:"active,omitempty" yaml:"active,omitempty"`
	Available   bool   `json:"available" yaml:"available"`
	Staged      string `json:"staged,omitempty" yaml:"staged,omitempty"`
	Activated   bool   `json:"activated" yaml:"activated"`
}

func newCheckCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the web channel for a newer bundle",
		Long: `Check fetches the bundle manifest once and stages a newer bundle if one is
published. With --activate, a staged bundle becomes the active one; running
clients pick it up on their next reload.

Examples:
  hoist check               # Stage a newer bundle if available
  hoist check --activate    # Stage and activate it
  hoist check -o json       # Machine-readable result`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Web.ManifestURL == "" {
				return fmt.Errorf("web.manifest_url is not configured")
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), newChannel(cfg, cache), cfg.Web.ManifestURL, activate)
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "Activate a staged bundle")

	return cmd
}

// runCheck checks channel once and reports the result.
func runCheck(ctx context.Context, out io.Writer, channel *webbundle.Channel, manifestURL string, activate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	result := checkResult{ManifestURL: manifestURL}

	available, err := channel.CheckForUpdate(ctx)
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	result.Available = available
	result.Staged = channel.StagedVersion()

	if available && activate {
		activated, err := channel.ActivateUpdate(ctx)
		if err != nil {
			return fmt.Errorf("failed to activate bundle: %w", err)
		}
		result.Activated = activated
		result.Staged = channel.StagedVersion()
	}

	result.Active, err = channel.ActiveVersion()
	if err != nil {
		return err
	}

	writer, format, err := newOutput(out)
	if err != nil {
		return err
	}
	if format.Structured() {
		return writer.Write(result)
	}

	active := result.Active
	if active == "" {
		active = "none"
	}
	_, _ = fmt.Fprintf(out, "Active bundle: %s\n", active)

	switch {
	case !result.Available:
		_, _ = fmt.Fprintln(out, "Already running latest bundle")
	case result.Activated:
		_, _ = fmt.Fprintf(out, "✓ Activated %s\n", active)
	default:
		_, _ = fmt.Fprintf(out, "Bundle %s staged\n", result.Staged)
		_, _ = fmt.Fprintln(out, "\nRun 'hoist check --activate' to activate it")
	}
	return nil
}
