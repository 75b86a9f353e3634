package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/coordinator"
	"github.com/adamancini/hoist/internal/host"
	"github.com/adamancini/hoist/internal/ledger"
	"github.com/adamancini/hoist/internal/metrics"
	"github.com/adamancini/hoist/internal/push"
	"github.com/adamancini/hoist/internal/session"
)

func newRunCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client and coordinate updates",
		Long: `Run hosts the client on the active web bundle and keeps it current.

In production, both update channels are checked at startup. The first check
of a session reloads straight away when the loaded bundle is stale; later
checks, periodic or triggered by the push channel, ask before reloading.
A newly installed native binary always asks before relaunching.

When stdin is not a terminal, prompts are declined unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cmd.OutOrStdout(), cfg, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept update prompts when stdin is not a terminal")

	return cmd
}

// runClient runs the coordinator until interrupted.
func runClient(ctx context.Context, out io.Writer, cfg *config.Config, autoAnswer bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags, err := openSession(cfg)
	if err != nil {
		return err
	}
	// Child processes started by reload commands stay in this session.
	if err := os.Setenv(session.EnvSessionID, flags.ID()); err != nil {
		return fmt.Errorf("failed to export session id: %w", err)
	}

	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	if result, err := cache.Prune(cfg.KeepBundles()); err != nil {
		logger.Warningf("pruning bundle cache: %v", err)
	} else if len(result.Deleted) > 0 {
		logger.Infof("pruned %d old bundle(s)", len(result.Deleted))
	}
	channel := newChannel(cfg, cache)

	collector := metrics.NewCollector()
	ccfg := coordinator.Config{
		Environment:   cfg.Environment,
		Web:           channel,
		Gate:          newGate(out, autoAnswer),
		Ledger:        ledger.New(hoistVersion, channel, clock.WallClock),
		Flags:         flags,
		Host:          host.New(host.Config{ReloadCommand: cfg.Web.ReloadCommand, SessionID: flags.ID()}),
		Metrics:       collector,
		Clock:         clock.WallClock,
		Watchdog:      cfg.WatchdogTimeout(),
		CheckInterval: cfg.CheckEvery(),
	}
	if cfg.Native.Enabled {
		ccfg.Native = newGitHubChecker(cfg)
	}
	if cfg.Web.EventsURL != "" {
		ccfg.Push = push.NewSubscriber(push.Config{URL: cfg.Web.EventsURL})
	}
	coord, err := coordinator.New(ccfg)
	if err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	active := ccfg.Ledger.CurrentVersion()
	if active == "" {
		active = "none"
	}
	if !quiet {
		_, _ = fmt.Fprintf(out, "hoist %s running bundle %s (%s, session %s)\n",
			hoistVersion, active, coord.Snapshot().Environment, flags.ID())
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(ctx)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Addr, reg, statusHandler(coord))
		})
	}

	coord.Init(ctx)
	err = g.Wait()
	coord.Wait()
	return err
}

// openSession opens the flag store for the inherited session, or for a new
// one after pruning stale session files.
func openSession(cfg *config.Config) (*session.FileStore, error) {
	dir, err := cfg.SessionDir()
	if err != nil {
		return nil, err
	}
	id, fresh := session.Resolve()
	if fresh {
		removed, err := session.Prune(dir, cfg.SessionMaxAge(), id, time.Now())
		if err != nil {
			logger.Warningf("pruning sessions: %v", err)
		} else if len(removed) > 0 {
			logger.Debugf("removed %d stale session(s)", len(removed))
		}
	}
	return session.OpenFileStore(dir, id)
}

func statusHandler(coord *coordinator.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(coord.Snapshot())
	})
}
