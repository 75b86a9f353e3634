package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/webbundle"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached web bundles",
		Long: `Cache manages the web bundles staged by the update channel.

Bundles are stored in ~/.cache/hoist/bundles/ unless web.cache_dir is set.
The active bundle is never pruned.`,
	}

	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheDeleteCmd())
	cmd.AddCommand(newCachePruneCmd())
	cmd.AddCommand(newCacheClearCmd())

	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached bundles",
		Long:  `List displays every cached bundle with its staging time and size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFromConfig()
			if err != nil {
				return err
			}
			return runCacheList(cmd.OutOrStdout(), cache)
		},
	}
}

func newCacheDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <version>",
		Short: "Delete a cached bundle",
		Long:  `Delete removes one bundle by version. The active bundle cannot be deleted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFromConfig()
			if err != nil {
				return err
			}
			return runCacheDelete(cmd.OutOrStdout(), cache, args[0])
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old bundles",
		Long: `Prune deletes old bundles, keeping the active one and the most recent N.

By default, keeps web.keep_bundles (3).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.KeepBundles()
			}
			return runCachePrune(cmd.OutOrStdout(), cache, keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", config.DefaultKeepBundles, "Number of bundles to keep")

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached bundle",
		Long: `Clear deletes all cached bundles, including the active one. The next
check downloads the latest bundle again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := cacheFromConfig()
			if err != nil {
				return err
			}
			if !yes {
				gate := newGate(cmd.OutOrStdout(), false)
				if !gate.Confirm(cmd.Context(), interactive.Request{
					Title:   "Clear cache",
					Message: fmt.Sprintf("Remove all bundles in %s?", cache.Dir()),
				}) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Clear cancelled.")
					return nil
				}
			}
			return runCacheClear(cmd.OutOrStdout(), cache)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func cacheFromConfig() (*webbundle.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openCache(cfg)
}

// runCacheList lists cached bundles.
func runCacheList(out io.Writer, cache *webbundle.Cache) error {
	bundles, err := cache.List()
	if err != nil {
		return err
	}

	writer, format, err := newOutput(out)
	if err != nil {
		return err
	}
	if format.Structured() {
		return writer.Write(bundles)
	}

	if len(bundles) == 0 {
		_, _ = fmt.Fprintln(out, "No bundles cached.")
		_, _ = fmt.Fprintf(out, "Cache directory: %s\n", cache.Dir())
		return nil
	}

	_, _ = fmt.Fprintf(out, "Bundles cached in %s:\n\n", cache.Dir())

	rows := make([][]string, 0, len(bundles))
	var total uint64
	for _, b := range bundles {
		active := ""
		if b.Active {
			active = "*"
		}
		rows = append(rows, []string{
			b.Version,
			b.StagedAt.Format("2006-01-02 15:04:05"),
			humanize.Bytes(uint64(b.Size)),
			active,
		})
		total += uint64(b.Size)
	}
	if err := writer.Table([]string{"Version", "Staged", "Size", "Active"}, rows); err != nil {
		return err
	}

	if quota := cache.Quota(); quota > 0 {
		_, _ = fmt.Fprintf(out, "\n%s of %s used\n", humanize.Bytes(total), humanize.Bytes(quota))
	}
	return nil
}

// runCacheDelete deletes one bundle.
func runCacheDelete(out io.Writer, cache *webbundle.Cache, version string) error {
	if err := cache.Delete(version); err != nil {
		return err
	}
	if !quiet {
		_, _ = fmt.Fprintf(out, "Bundle deleted: %s\n", version)
	}
	return nil
}

// runCachePrune removes old bundles.
func runCachePrune(out io.Writer, cache *webbundle.Cache, keep int) error {
	result, err := cache.Prune(keep)
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

	if len(result.Deleted) == 0 {
		_, _ = fmt.Fprintf(out, "No bundles to prune. Keeping %d bundles.\n", result.Kept)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Pruned %d bundle(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, b := range result.Deleted {
		_, _ = fmt.Fprintf(out, "  - %s (%s, %s)\n", b.Version,
			b.StagedAt.Format("2006-01-02 15:04:05"), humanize.Bytes(uint64(b.Size)))
	}
	return nil
}

// runCacheClear removes every bundle.
func runCacheClear(out io.Writer, cache *webbundle.Cache) error {
	if err := cache.Clear(); err != nil {
		return err
	}
	if !quiet {
		_, _ = fmt.Fprintln(out, "Bundle cache cleared.")
	}
	return nil
}
