package coordinator

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"

	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/metrics"
	"github.com/adamancini/hoist/internal/update"
)

// ProgressAccumulator totals the events of one DownloadAndInstall call.
type ProgressAccumulator struct {
	ContentLength int64
	Downloaded    int64
	Finished      bool
}

// Observe is an update.Manifest event callback.
func (p *ProgressAccumulator) Observe(event update.Event) {
	switch event.Kind {
	case update.EventStarted:
		p.ContentLength = 0
		if event.ContentLength != nil {
			p.ContentLength = *event.ContentLength
		}
	case update.EventProgress:
		p.Downloaded += event.ChunkLength
	case update.EventFinished:
		p.Finished = true
	}
}

// Percent is the share of ContentLength downloaded, or 0 when unknown.
func (p *ProgressAccumulator) Percent() float64 {
	if p.ContentLength <= 0 {
		return 0
	}
	return float64(p.Downloaded) * 100 / float64(p.ContentLength)
}

// CheckNativeUpdate checks the native updater and, when a newer binary is
// published, installs it and asks whether to relaunch. Concurrent calls
// while one is running return nil immediately. Errors are logged before
// being returned.
func (c *Coordinator) CheckNativeUpdate(ctx context.Context) error {
	if c.native == nil {
		return nil
	}

	c.mu.Lock()
	if c.nativeBusy {
		c.mu.Unlock()
		c.logger.Debugf("native update already in progress")
		return nil
	}
	c.nativeBusy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.nativeBusy = false
		c.mu.Unlock()
	}()

	manifest, err := c.native.Check(ctx)
	if err != nil {
		c.logger.Errorf("native update check failed: %v", err)
		c.metrics.NativeUpdate(metrics.OutcomeFailed, 0)
		return errors.Annotate(err, "checking for native update")
	}
	if manifest == nil {
		c.logger.Debugf("no native update available")
		return nil
	}
	if c.installedPending(manifest.Version()) {
		c.logger.Debugf("native update %s already installed, waiting for relaunch", manifest.Version())
		return nil
	}
	return c.promptNativeUpdate(ctx, manifest)
}

// installedPending reports whether version is no newer than a binary
// already installed by this process.
func (c *Coordinator) installedPending(version string) bool {
	c.mu.Lock()
	pending := c.nativePending
	c.mu.Unlock()
	if pending == "" {
		return false
	}
	cmp, err := update.CompareVersions(version, pending)
	if err != nil {
		return version == pending
	}
	return cmp <= 0
}

func (c *Coordinator) promptNativeUpdate(ctx context.Context, manifest update.Manifest) error {
	version := manifest.Version()
	c.logger.Infof("downloading native update %s", version)

	var progress ProgressAccumulator
	err := manifest.DownloadAndInstall(ctx, func(event update.Event) {
		progress.Observe(event)
		switch event.Kind {
		case update.EventStarted:
			c.logger.Debugf("download of %s started (%s)", version, humanize.Bytes(uint64(progress.ContentLength)))
		case update.EventFinished:
			c.logger.Debugf("download of %s finished (%s)", version, humanize.Bytes(uint64(progress.Downloaded)))
		}
	})
	if err != nil {
		c.logger.Errorf("native update %s failed: %v", version, err)
		c.metrics.NativeUpdate(metrics.OutcomeFailed, progress.Downloaded)
		return errors.Annotatef(err, "installing native update %s", version)
	}
	c.logger.Infof("installed native update %s (%s)", version, humanize.Bytes(uint64(progress.Downloaded)))
	c.mu.Lock()
	c.nativePending = version
	c.mu.Unlock()

	c.metrics.DialogShown()
	confirmed := c.gate.Confirm(ctx, interactive.Request{
		Title:   "Update installed",
		Message: fmt.Sprintf("Version %s has been installed. Restart now?", version),
	})
	if !confirmed {
		c.logger.Infof("relaunch declined, %s will run on next start", version)
		c.metrics.NativeUpdate(metrics.OutcomeDeclined, progress.Downloaded)
		c.offerDeferred(ctx)
		return nil
	}

	c.metrics.NativeUpdate(metrics.OutcomeInstalled, progress.Downloaded)
	if err := c.host.RelaunchApp(); err != nil {
		c.logger.Errorf("relaunch failed: %v", err)
		c.offerDeferred(ctx)
		return errors.Annotate(err, "relaunching")
	}
	return nil
}
