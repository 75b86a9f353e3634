// Package coordinator decides when a newer build may disrupt the user.
//
// It drives two independent channels: the web bundle channel, whose checks
// are single-flight and bounded by a watchdog, and the native updater, whose
// installs are gated behind the same confirmation prompt. A session flag
// distinguishes the first check after a fresh start, which reloads straight
// away, from background checks, which wait for confirmation.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"golang.org/x/sync/errgroup"

	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/ledger"
	"github.com/adamancini/hoist/internal/push"
	"github.com/adamancini/hoist/internal/session"
	"github.com/adamancini/hoist/internal/types"
	"github.com/adamancini/hoist/internal/update"
	"github.com/adamancini/hoist/internal/webbundle"
)

// DefaultWatchdog bounds a single web bundle check.
const DefaultWatchdog = 30 * time.Second

// WebChannel is the background-update channel for the web bundle.
type WebChannel interface {
	CheckForUpdate(ctx context.Context) (bool, error)
	ActivateUpdate(ctx context.Context) (bool, error)
	Events() <-chan webbundle.LifecycleEvent
	ClearCaches(ctx context.Context) error
}

// Ledger holds the versions the coordinator reasons about.
type Ledger interface {
	CurrentVersion() string
	AppVersion() string
	CapturePreviousVersion()
	ClearPreviousVersion()
	PreviousVersion() (string, bool)
	Refresh()
	Snapshot() ledger.Snapshot
}

// Host reloads or relaunches the running client.
type Host interface {
	ReloadPage()
	RelaunchApp() error
}

// PushSource delivers server push messages until ctx is done.
type PushSource interface {
	Run(ctx context.Context, handler push.Handler) error
}

// Logger represents the methods used by the coordinator to log.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warningf(string, ...interface{})
	Errorf(string, ...interface{})
}

// Metrics records coordinator activity.
type Metrics interface {
	CheckStarted()
	CheckFinished(outcome string, took time.Duration)
	CheckSkipped()
	Event(kind string)
	DialogShown()
	NativeUpdate(outcome string, downloaded int64)
}

// Config holds the coordinator's collaborators.
type Config struct {
	Environment types.Environment

	Web    WebChannel
	Native update.Checker // optional
	Gate   interactive.Gate
	Ledger Ledger
	Flags  session.Store
	Host   Host
	Push   PushSource // optional

	Logger  Logger      // defaults to the hoist.coordinator logger
	Metrics Metrics     // optional
	Clock   clock.Clock // defaults to clock.WallClock

	// Watchdog bounds a web bundle check; defaults to DefaultWatchdog.
	Watchdog time.Duration
	// CheckInterval is the background re-check period; zero disables it.
	CheckInterval time.Duration
}

// Validate returns an error if config cannot drive a Coordinator.
func (config Config) Validate() error {
	if config.Web == nil {
		return errors.NotValidf("nil Web channel")
	}
	if config.Gate == nil {
		return errors.NotValidf("nil Gate")
	}
	if config.Ledger == nil {
		return errors.NotValidf("nil Ledger")
	}
	if config.Flags == nil {
		return errors.NotValidf("nil Flags")
	}
	if config.Host == nil {
		return errors.NotValidf("nil Host")
	}
	if config.Watchdog < 0 {
		return errors.NotValidf("negative Watchdog")
	}
	if config.CheckInterval < 0 {
		return errors.NotValidf("negative CheckInterval")
	}
	return nil
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	env      types.Environment
	web      WebChannel
	native   update.Checker
	gate     interactive.Gate
	ledger   Ledger
	flags    session.Store
	host     Host
	push     PushSource
	logger   Logger
	metrics  Metrics
	clock    clock.Clock
	watchdog time.Duration
	interval time.Duration

	mu          sync.Mutex
	state       CheckState
	phase       Phase
	timer       clock.Timer
	cancelCheck context.CancelFunc
	offered     map[string]bool
	deferred    *webbundle.Ready
	nativeBusy  bool

	// nativePending is the version installed but not yet running.
	nativePending string

	wg sync.WaitGroup
}

// New returns a Coordinator for config.
func New(config Config) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Coordinator{
		env:      config.Environment.Default(),
		web:      config.Web,
		native:   config.Native,
		gate:     config.Gate,
		ledger:   config.Ledger,
		flags:    config.Flags,
		host:     config.Host,
		push:     config.Push,
		logger:   config.Logger,
		metrics:  config.Metrics,
		clock:    config.Clock,
		watchdog: config.Watchdog,
		interval: config.CheckInterval,
		offered:  make(map[string]bool),
	}
	if c.logger == nil {
		c.logger = loggo.GetLogger("hoist.coordinator")
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.watchdog == 0 {
		c.watchdog = DefaultWatchdog
	}
	return c, nil
}

// Init starts both channel checks without waiting for either. Outside
// production it does nothing.
func (c *Coordinator) Init(ctx context.Context) {
	if !c.env.IsProduction() {
		c.logger.Debugf("%s environment, skipping startup update checks", c.env)
		return
	}
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.CheckServiceWorkerUpdate(ctx)
	}()
	go func() {
		defer c.wg.Done()
		// Failures are logged by CheckNativeUpdate.
		_ = c.CheckNativeUpdate(ctx)
	}()
}

// Wait blocks until the checks started by Init have returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Run handles lifecycle events until ctx is done. In production it also
// re-checks both channels every CheckInterval and checks the web channel
// whenever the push channel announces a published build.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.drainEvents(ctx)
		return nil
	})
	if c.env.IsProduction() && c.interval > 0 {
		g.Go(func() error {
			c.recheck(ctx)
			return nil
		})
	}
	if c.env.IsProduction() && c.push != nil {
		g.Go(func() error {
			return errors.Annotate(c.push.Run(ctx, c.handlePush), "push channel")
		})
	}
	return g.Wait()
}

func (c *Coordinator) drainEvents(ctx context.Context) {
	events := c.web.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			c.HandleEvent(ctx, event)
		}
	}
}

func (c *Coordinator) recheck(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.interval):
		}
		c.CheckServiceWorkerUpdate(ctx)
		_ = c.CheckNativeUpdate(ctx)
	}
}

func (c *Coordinator) handlePush(ctx context.Context, msg push.Message) {
	switch msg.Type {
	case push.BuildPublished:
		c.logger.Infof("build %s published, checking for update", msg.Version)
		c.CheckServiceWorkerUpdate(ctx)
	default:
		c.logger.Debugf("ignoring %s push message", msg.Type)
	}
}

// Snapshot returns the coordinator's current state.
func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Environment:        c.env,
		Phase:              c.phase,
		Check:              c.state,
		NativeInProgress:   c.nativeBusy,
		NativePending:      c.nativePending,
		FirstCheckComplete: c.flags.Get(session.FlagFirstCheckComplete),
		Versions:           c.ledger.Snapshot(),
	}
}

// Phase returns the web channel's state machine phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

type nopMetrics struct{}

func (nopMetrics) CheckStarted()                       {}
func (nopMetrics) CheckFinished(string, time.Duration) {}
func (nopMetrics) CheckSkipped()                       {}
func (nopMetrics) Event(string)                        {}
func (nopMetrics) DialogShown()                        {}
func (nopMetrics) NativeUpdate(string, int64)          {}
