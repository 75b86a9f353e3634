package coordinator

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/session"
	"github.com/adamancini/hoist/internal/update"
	"github.com/adamancini/hoist/internal/webbundle"
)

// HandleEvent reacts to one lifecycle event from the web channel. It is
// safe to call with duplicate events.
func (c *Coordinator) HandleEvent(ctx context.Context, event webbundle.LifecycleEvent) {
	if event == nil {
		return
	}
	c.metrics.Event(event.Kind())

	switch e := event.(type) {
	case webbundle.Detected:
		c.logger.Infof("update detected: %s", e.Version)
	case webbundle.Ready:
		c.handleReady(ctx, e)
	case webbundle.InstallationFailed:
		c.logger.Errorf("installation of %s failed: %s", e.Version, e.Error)
		if !webbundle.IsQuotaError(e.Error) {
			return
		}
		c.logger.Warningf("storage quota exceeded, clearing cached bundles")
		if err := c.ClearCachesAndPromptReload(ctx); err != nil {
			c.logger.Errorf("%v", err)
		}
	default:
		c.logger.Warningf("ignoring unknown lifecycle event %T", event)
	}
}

func (c *Coordinator) handleReady(ctx context.Context, e webbundle.Ready) {
	c.mu.Lock()
	switch {
	case c.phase == PhaseReloaded:
		c.mu.Unlock()
		c.logger.Debugf("reload in progress, ignoring ready event for %s", e.LatestVersion)
		return
	case !c.flags.Get(session.FlagFirstCheckComplete):
		c.mu.Unlock()
		c.logger.Infof("fresh load, deferring to check flow")
		return
	}
	previous, ok := c.ledger.PreviousVersion()
	if !ok {
		c.phase = PhaseDialogSkipped
		c.mu.Unlock()
		c.logger.Infof("no previous version captured, skipping dialog")
		return
	}
	if c.offered[e.LatestVersion] {
		c.mu.Unlock()
		c.logger.Debugf("update %s already offered", e.LatestVersion)
		return
	}
	if c.gate.Visible() {
		// Offered once the visible dialog closes; the newest wins.
		c.deferred = &e
		c.mu.Unlock()
		c.logger.Infof("dialog showing, deferring update %s", e.LatestVersion)
		return
	}
	c.offered[e.LatestVersion] = true
	c.phase = PhaseDialogShown
	c.mu.Unlock()

	c.ledger.Refresh()
	running := previous
	if running == "" {
		running = "no bundle"
	}
	req := interactive.Request{
		Title:   "Update ready",
		Message: fmt.Sprintf("Version %s is ready (running %s). Reload now?", e.LatestVersion, running),
	}
	if snap := c.ledger.Snapshot(); snap.Diff != "" && snap.Diff != update.DiffNone {
		req.Details = append(req.Details, fmt.Sprintf("%s update from %s", snap.Diff, previous))
	}

	c.metrics.DialogShown()
	if !c.gate.Confirm(ctx, req) {
		c.swapPhase(PhaseDialogShown, PhaseIdle)
		c.logger.Infof("reload to %s declined", e.LatestVersion)
		c.offerDeferred(ctx)
		return
	}
	c.reload()
}

// offerDeferred handles a Ready event that arrived while a dialog was
// showing. Call it after a dialog closes without reloading or relaunching.
func (c *Coordinator) offerDeferred(ctx context.Context) {
	c.mu.Lock()
	e := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	if e == nil {
		return
	}
	c.logger.Infof("offering deferred update %s", e.LatestVersion)
	c.handleReady(ctx, *e)
}

// ClearCachesAndPromptReload removes every cached bundle, then asks
// whether to reload.
func (c *Coordinator) ClearCachesAndPromptReload(ctx context.Context) error {
	if err := c.web.ClearCaches(ctx); err != nil {
		return errors.Annotate(err, "clearing cached bundles")
	}
	c.logger.Infof("cleared cached bundles")

	c.mu.Lock()
	if !c.state.InProgress {
		c.phase = PhaseDialogShown
	}
	c.mu.Unlock()
	c.metrics.DialogShown()
	confirmed := c.gate.Confirm(ctx, interactive.Request{
		Title:   "Storage full",
		Message: "Cached application files were cleared to free space. Reload now?",
	})
	if !confirmed {
		c.swapPhase(PhaseDialogShown, PhaseIdle)
		c.offerDeferred(ctx)
		return nil
	}
	c.reload()
	return nil
}

func (c *Coordinator) reload() {
	c.mu.Lock()
	c.phase = PhaseReloaded
	c.mu.Unlock()
	c.host.ReloadPage()
}

// swapPhase moves from one phase to another, leaving any phase entered
// in the meantime alone.
func (c *Coordinator) swapPhase(from, to Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == from {
		c.phase = to
	}
}
