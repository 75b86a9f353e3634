package coordinator

import (
	"context"

	"github.com/adamancini/hoist/internal/session"
)

// CheckServiceWorkerUpdate runs one web channel check unless another is
// outstanding, in which case it returns OutcomeSkipped straight away.
//
// When an update is activated on the first check of a session the page
// was loaded stale, so it reloads immediately. Later checks leave the
// reload to the Ready event and the confirmation prompt.
func (c *Coordinator) CheckServiceWorkerUpdate(ctx context.Context) Outcome {
	gen, checkCtx, ok := c.begin(ctx)
	if !ok {
		c.logger.Debugf("update check already in progress")
		c.metrics.CheckSkipped()
		return OutcomeSkipped
	}

	found, err := c.web.CheckForUpdate(checkCtx)
	if err != nil {
		return c.settle(gen, func() Outcome {
			c.logger.Errorf("update check failed: %v", err)
			c.ledger.ClearPreviousVersion()
			c.phase = PhaseIdle
			return OutcomeFailed
		})
	}
	if !found {
		return c.settle(gen, func() Outcome {
			c.logger.Infof("no update available")
			c.ledger.ClearPreviousVersion()
			c.phase = PhaseNoUpdate
			return OutcomeNoUpdate
		})
	}

	if !c.advance(gen, PhaseUpdateActivating) {
		return OutcomeTimeout
	}
	activated, err := c.web.ActivateUpdate(checkCtx)

	reload := false
	outcome := c.settle(gen, func() Outcome {
		switch {
		case err != nil:
			c.logger.Errorf("failed to activate update: %v", err)
			c.phase = PhaseIdle
			return OutcomeActivateFailed
		case !activated:
			c.logger.Errorf("failed to activate update: nothing staged")
			c.phase = PhaseIdle
			return OutcomeActivateFailed
		case !c.flags.Get(session.FlagFirstCheckComplete):
			c.logger.Infof("update activated on fresh load, reloading")
			c.phase = PhaseReloaded
			reload = true
			return OutcomeReloaded
		default:
			c.logger.Infof("update activated, awaiting confirmation")
			// The Ready event may already have been handled.
			if c.phase == PhaseUpdateActivating {
				c.phase = PhaseWaitingForReady
			}
			return OutcomeAwaiting
		}
	})
	if reload {
		c.host.ReloadPage()
	}
	return outcome
}

// begin claims the guard, captures the previous version and arms the
// watchdog. It reports false when a check is already outstanding.
func (c *Coordinator) begin(ctx context.Context) (uint64, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.InProgress {
		return 0, nil, false
	}
	c.state.InProgress = true
	c.state.Generation++
	c.state.StartedAt = c.clock.Now()
	c.phase = PhaseChecking

	gen := c.state.Generation
	checkCtx, cancel := context.WithCancel(ctx)
	c.cancelCheck = cancel
	c.timer = c.clock.AfterFunc(c.watchdog, func() { c.expire(gen) })

	c.ledger.CapturePreviousVersion()
	c.metrics.CheckStarted()
	return gen, checkCtx, true
}

// currentLocked reports whether gen is still the outstanding attempt.
func (c *Coordinator) currentLocked(gen uint64) bool {
	return c.state.InProgress && c.state.Generation == gen
}

func (c *Coordinator) advance(gen uint64, phase Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		c.logger.Warningf("discarding result of abandoned update check %d", gen)
		return false
	}
	c.phase = phase
	return true
}

// settle concludes attempt gen with the state changes made by conclude.
// A result for an attempt the watchdog already ended is discarded.
func (c *Coordinator) settle(gen uint64, conclude func() Outcome) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.logger.Warningf("discarding result of abandoned update check %d", gen)
		return OutcomeTimeout
	}
	outcome := conclude()
	c.flags.Set(session.FlagFirstCheckComplete, true)
	c.endLocked(outcome)
	return outcome
}

// expire is the watchdog for attempt gen.
func (c *Coordinator) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}
	c.logger.Errorf("update check timed out after %v", c.watchdog)
	c.ledger.ClearPreviousVersion()
	c.flags.Set(session.FlagFirstCheckComplete, true)
	c.phase = PhaseIdle
	c.endLocked(OutcomeTimeout)
}

func (c *Coordinator) endLocked(outcome Outcome) {
	c.state.InProgress = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelCheck != nil {
		c.cancelCheck()
		c.cancelCheck = nil
	}
	c.metrics.CheckFinished(string(outcome), c.clock.Now().Sub(c.state.StartedAt))
}
