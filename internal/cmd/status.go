package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/coordinator"
	"github.com/adamancini/hoist/internal/types"
)

// statusReport summarises local update state and, when reachable, the
// running client.
type statusReport struct {
	Environment types.Environment   `json:"environment" yaml:"environment"`
	ManifestURL string              `json:"manifest_url,omitempty" yaml:"manifest_url,omitempty"`
	Cache       cacheSummary        `json:"cache" yaml:"cache"`
	Sessions    sessionSummary      `json:"sessions" yaml:"sessions"`
	Native      bool                `json:"native_updates" yaml:"native_updates"`
	Live        *coordinator.Status `json:"live,omitempty" yaml:"live,omitempty"`
}

type cacheSummary struct {
	Dir     string `json:"dir" yaml:"dir"`
	Active  string `json:"active,omitempty" yaml:"active,omitempty"`
	Bundles int    `json:"bundles" yaml:"bundles"`
	Usage   uint64 `json:"usage" yaml:"usage"`
	Quota   uint64 `json:"quota" yaml:"quota"`
}

type sessionSummary struct {
	Dir   string `json:"dir" yaml:"dir"`
	Count int    `json:"count" yaml:"count"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show update status summary",
		Long: `Status shows the active bundle, cache usage and sessions on disk.

When metrics.addr is configured and 'hoist run' is serving it, the running
client's phase and version ledger are included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

// runStatus gathers and prints the status report.
func runStatus(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	report := statusReport{
		Environment: cfg.Environment.Default(),
		ManifestURL: cfg.Web.ManifestURL,
		Native:      cfg.Native.Enabled,
	}

	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	bundles, err := cache.List()
	if err != nil {
		return err
	}
	report.Cache = cacheSummary{Dir: cache.Dir(), Bundles: len(bundles), Quota: cache.Quota()}
	if report.Cache.Usage, err = cache.Usage(); err != nil {
		return err
	}
	if report.Cache.Active, err = cache.Active(); err != nil {
		return err
	}

	sessionDir, err := cfg.SessionDir()
	if err != nil {
		return err
	}
	report.Sessions = sessionSummary{Dir: sessionDir, Count: countSessions(sessionDir)}

	if cfg.Metrics.Addr != "" {
		live, err := fetchLiveStatus(ctx, "http://"+cfg.Metrics.Addr+"/status")
		if err != nil {
			logger.Debugf("no running client at %s: %v", cfg.Metrics.Addr, err)
		} else {
			report.Live = live
		}
	}

	writer, format, err := newOutput(out)
	if err != nil {
		return err
	}
	if format.Structured() {
		return writer.Write(report)
	}

	active := report.Cache.Active
	if active == "" {
		active = "none"
	}
	usage := humanize.Bytes(report.Cache.Usage)
	if report.Cache.Quota > 0 {
		usage += " of " + humanize.Bytes(report.Cache.Quota)
	}
	native := "disabled"
	if report.Native {
		native = "enabled"
	}
	fields := [][2]string{{"Environment", report.Environment.String()}}
	if report.ManifestURL != "" {
		fields = append(fields, [2]string{"Manifest", report.ManifestURL})
	}
	fields = append(fields,
		[2]string{"Active", active},
		[2]string{"Cache", fmt.Sprintf("%d bundle(s), %s", report.Cache.Bundles, usage)},
		[2]string{"Sessions", strconv.Itoa(report.Sessions.Count)},
		[2]string{"Native", native},
	)
	if err := writer.Fields(fields); err != nil {
		return err
	}

	if live := report.Live; live != nil {
		_, _ = fmt.Fprintln(out, "\nRunning client:")
		_, _ = fmt.Fprintf(out, "  Phase:     %s\n", live.Phase)
		if live.Check.InProgress {
			_, _ = fmt.Fprintf(out, "  Checking:  since %s\n", humanize.Time(live.Check.StartedAt))
		}
		_, _ = fmt.Fprintf(out, "  Current:   %s\n", live.Versions.Current)
		if live.Versions.Latest != "" && live.Versions.Latest != live.Versions.Current {
			_, _ = fmt.Fprintf(out, "  Latest:    %s (%s)\n", live.Versions.Latest, live.Versions.Diff)
		}
		if live.Versions.HasPrevious {
			_, _ = fmt.Fprintf(out, "  Previous:  %s\n", live.Versions.Previous)
		}
		if live.NativePending != "" {
			_, _ = fmt.Fprintf(out, "  Installed: %s, restart to run it\n", live.NativePending)
		}
	}
	return nil
}

// fetchLiveStatus reads the coordinator snapshot served by a running client.
func fetchLiveStatus(ctx context.Context, url string) (*coordinator.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var status coordinator.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func countSessions(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n
}
