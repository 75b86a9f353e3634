// Package host implements the disruptive actions the coordinator may take
// on the running client: reloading it within the current session and
// relaunching it as a fresh session after a native update.
package host

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hoist/internal/session"
)

const reloadTimeout = 30 * time.Second

var logger = loggo.GetLogger("hoist.host")

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Process abstracts replacing, spawning and leaving the current process.
type Process interface {
	Exec(path string, args, env []string) error
	Start(path string, args, env []string) error
	Exit(code int)
}

// Config configures a Host.
type Config struct {
	// ReloadCommand, when set, is run through "sh -c" instead of
	// re-executing hoist.
	ReloadCommand string
	SessionID     string
	Args          []string // argv for the re-executed process; defaults to os.Args
	Runner        CommandRunner
	Process       Process
	Executable    func() (string, error) // defaults to os.Executable
}

// Host reloads or relaunches the client.
type Host struct {
	reloadCommand string
	sessionID     string
	args          []string
	runner        CommandRunner
	proc          Process
	executable    func() (string, error)
}

// New returns a Host.
func New(cfg Config) *Host {
	h := &Host{
		reloadCommand: strings.TrimSpace(cfg.ReloadCommand),
		sessionID:     cfg.SessionID,
		args:          cfg.Args,
		runner:        cfg.Runner,
		proc:          cfg.Process,
		executable:    cfg.Executable,
	}
	if len(h.args) == 0 {
		h.args = os.Args
	}
	if h.runner == nil {
		h.runner = &DefaultCommandRunner{}
	}
	if h.proc == nil {
		h.proc = osProcess{}
	}
	if h.executable == nil {
		h.executable = os.Executable
	}
	return h
}

// ReloadPage switches the client to the active bundle without ending the
// session. Failures are logged; the client keeps running on what it has.
func (h *Host) ReloadPage() {
	if h.reloadCommand != "" {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()

		logger.Infof("reloading with %q", h.reloadCommand)
		output, err := h.runner.Run(ctx, "sh", "-c", h.reloadCommand)
		if err != nil {
			logger.Errorf("reload command failed: %v\nOutput: %s", err, string(output))
		}
		return
	}

	path, err := h.executable()
	if err != nil {
		logger.Errorf("cannot reload, locating executable: %v", err)
		return
	}
	logger.Infof("reloading %s in session %s", path, h.sessionID)
	env := withEnv(os.Environ(), session.EnvSessionID, h.sessionID)
	if err := h.proc.Exec(path, h.args, env); err != nil {
		logger.Errorf("reload failed: %v", err)
	}
}

// RelaunchApp starts the installed binary in a fresh session and exits.
func (h *Host) RelaunchApp() error {
	path, err := h.executable()
	if err != nil {
		return errors.Annotate(err, "locating executable")
	}

	env := withEnv(os.Environ(), session.EnvSessionID, "")
	logger.Infof("relaunching %s", path)
	if err := h.proc.Start(path, h.args, env); err != nil {
		return errors.Annotatef(err, "starting %s", path)
	}
	h.proc.Exit(0)
	return nil
}

// withEnv returns env with key set to value, or removed when value is "".
func withEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	if value != "" {
		out = append(out, prefix+value)
	}
	return out
}
