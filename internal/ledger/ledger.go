// Package ledger tracks the web bundle versions the coordinator reasons
// about: the version this process loaded, the version captured before a
// check, and the latest activated version.
package ledger

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo"

	"github.com/adamancini/hoist/internal/update"
)

var logger = loggo.GetLogger("hoist.ledger")

// Source reports the currently active bundle version ("" when none).
type Source interface {
	ActiveVersion() (string, error)
}

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	App         string      `json:"app" yaml:"app"`
	Current     string      `json:"current" yaml:"current"`
	Previous    string      `json:"previous,omitempty" yaml:"previous,omitempty"`
	HasPrevious bool        `json:"has_previous" yaml:"has_previous"`
	Latest      string      `json:"latest,omitempty" yaml:"latest,omitempty"`
	Diff        update.Diff `json:"diff,omitempty" yaml:"diff,omitempty"`
	CapturedAt  time.Time   `json:"captured_at,omitempty" yaml:"captured_at,omitempty"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	source Source
	clock  clock.Clock

	mu          sync.Mutex
	app         string
	current     string
	previous    string
	hasPrevious bool
	latest      string
	diff        update.Diff
	capturedAt  time.Time
}

// New returns a ledger whose current version is the bundle active now.
func New(appVersion string, source Source, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.WallClock
	}
	l := &Ledger{
		source: source,
		clock:  clk,
		app:    appVersion,
	}
	l.current = l.readSource()
	l.latest = l.current
	return l
}

func (l *Ledger) readSource() string {
	if l.source == nil {
		return ""
	}
	v, err := l.source.ActiveVersion()
	if err != nil {
		logger.Warningf("reading active bundle version: %v", err)
		return ""
	}
	return v
}

// CurrentVersion is the bundle version this process loaded.
func (l *Ledger) CurrentVersion() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// AppVersion is the version of the hoist binary.
func (l *Ledger) AppVersion() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.app
}

// CapturePreviousVersion records the loaded version as the baseline for
// the next update. A process that loaded no bundle captures an empty
// baseline, which is distinct from a cleared one.
func (l *Ledger) CapturePreviousVersion() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.previous, l.hasPrevious = l.current, true
	l.capturedAt = l.clock.Now()
}

// ClearPreviousVersion forgets the captured baseline.
func (l *Ledger) ClearPreviousVersion() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.previous, l.hasPrevious = "", false
}

// PreviousVersion returns the captured baseline, if any.
func (l *Ledger) PreviousVersion() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.previous, l.hasPrevious
}

// Refresh re-reads the latest active version and recomputes the diff
// against the captured baseline.
func (l *Ledger) Refresh() {
	latest := l.readSource()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = latest

	base := l.current
	if l.hasPrevious {
		base = l.previous
	}
	diff, err := update.DiffVersions(base, latest)
	if err != nil {
		logger.Debugf("no version diff for %q -> %q: %v", base, latest, err)
		diff = update.DiffNone
	}
	l.diff = diff
}

// Snapshot returns a copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		App:         l.app,
		Current:     l.current,
		Previous:    l.previous,
		HasPrevious: l.hasPrevious,
		Latest:      l.latest,
		Diff:        l.diff,
		CapturedAt:  l.capturedAt,
	}
}
