package coordinator

import (
	"time"

	"github.com/adamancini/hoist/internal/ledger"
	"github.com/adamancini/hoist/internal/types"
)

// Phase is a state of the web channel state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseNoUpdate
	PhaseUpdateActivating
	PhaseWaitingForReady
	PhaseDialogShown
	PhaseDialogSkipped
	// PhaseReloaded is terminal; the process is about to be replaced.
	PhaseReloaded
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseChecking:         "checking",
	PhaseNoUpdate:         "no-update",
	PhaseUpdateActivating: "update-activating",
	PhaseWaitingForReady:  "waiting-for-ready",
	PhaseDialogShown:      "dialog-shown",
	PhaseDialogSkipped:    "dialog-skipped",
	PhaseReloaded:         "reloaded",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the phase name in JSON and YAML output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name. Unknown names decode as PhaseIdle.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	*p = PhaseIdle
	return nil
}

// Outcome is how a web channel check concluded.
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeNoUpdate       Outcome = "no_update"
	OutcomeReloaded       Outcome = "reloaded"
	OutcomeAwaiting       Outcome = "awaiting_confirmation"
	OutcomeActivateFailed Outcome = "activate_failed"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimeout        Outcome = "timeout"
)

// CheckState guards the web channel check. Generation identifies the
// outstanding attempt so a result arriving after the watchdog is dropped.
type CheckState struct {
	InProgress bool      `json:"in_progress" yaml:"in_progress"`
	StartedAt  time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Generation uint64    `json:"generation" yaml:"generation"`
}

// Status is a point-in-time view of the coordinator for display.
type Status struct {
	Environment        types.Environment `json:"environment" yaml:"environment"`
	Phase              Phase             `json:"phase" yaml:"phase"`
	Check              CheckState        `json:"check" yaml:"check"`
	NativeInProgress   bool              `json:"native_in_progress" yaml:"native_in_progress"`
	NativePending      string            `json:"native_pending,omitempty" yaml:"native_pending,omitempty"`
	FirstCheckComplete bool              `json:"first_check_complete" yaml:"first_check_complete"`
	Versions           ledger.Snapshot   `json:"versions" yaml:"versions"`
}
