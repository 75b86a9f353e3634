package host

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/hoist/internal/session"
)

// MockCommandRunner records commands instead of running them.
type MockCommandRunner struct {
	Commands [][]string
	Output   []byte
	Err      error
}

func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.Commands = append(m.Commands, append([]string{name}, args...))
	return m.Output, m.Err
}

type call struct {
	path string
	args []string
	env  []string
}

type fakeProcess struct {
	execs    []call
	starts   []call
	exitCode *int
	execErr  error
	startErr error
}

func (f *fakeProcess) Exec(path string, args, env []string) error {
	f.execs = append(f.execs, call{path, args, env})
	return f.execErr
}

func (f *fakeProcess) Start(path string, args, env []string) error {
	f.starts = append(f.starts, call{path, args, env})
	return f.startErr
}

func (f *fakeProcess) Exit(code int) {
	f.exitCode = &code
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func newTestHost(cfg Config) (*Host, *fakeProcess, *MockCommandRunner) {
	proc := &fakeProcess{}
	runner := &MockCommandRunner{}
	cfg.Process = proc
	cfg.Runner = runner
	cfg.Args = []string{"hoist", "run"}
	cfg.Executable = func() (string, error) { return "/usr/local/bin/hoist", nil }
	return New(cfg), proc, runner
}

func TestReloadPageReexecsInSameSession(t *testing.T) {
	t.Setenv(session.EnvSessionID, "stale-value")
	h, proc, runner := newTestHost(Config{SessionID: "8c3a1f5e-1111-4222-8333-444455556666"})

	h.ReloadPage()

	require.Len(t, proc.execs, 1)
	assert.Empty(t, runner.Commands)
	assert.Equal(t, "/usr/local/bin/hoist", proc.execs[0].path)
	assert.Equal(t, []string{"hoist", "run"}, proc.execs[0].args)

	id, ok := envValue(proc.execs[0].env, session.EnvSessionID)
	assert.True(t, ok)
	assert.Equal(t, "8c3a1f5e-1111-4222-8333-444455556666", id)
	assert.Nil(t, proc.exitCode)
}

func TestReloadPageRunsReloadCommand(t *testing.T) {
	h, proc, runner := newTestHost(Config{ReloadCommand: "  systemctl --user reload app  "})

	h.ReloadPage()

	assert.Empty(t, proc.execs)
	require.Len(t, runner.Commands, 1)
	assert.Equal(t, []string{"sh", "-c", "systemctl --user reload app"}, runner.Commands[0])
}

func TestReloadPageFailuresAreLogged(t *testing.T) {
	h, proc, runner := newTestHost(Config{ReloadCommand: "false"})
	runner.Err = errors.New("exit status 1")
	h.ReloadPage()
	assert.Len(t, runner.Commands, 1)

	h, proc, _ = newTestHost(Config{})
	proc.execErr = errors.New("exec format error")
	h.ReloadPage()
	assert.Len(t, proc.execs, 1)
}

func TestRelaunchAppStartsFreshSession(t *testing.T) {
	t.Setenv(session.EnvSessionID, "8c3a1f5e-1111-4222-8333-444455556666")
	h, proc, _ := newTestHost(Config{SessionID: "8c3a1f5e-1111-4222-8333-444455556666"})

	require.NoError(t, h.RelaunchApp())

	require.Len(t, proc.starts, 1)
	_, ok := envValue(proc.starts[0].env, session.EnvSessionID)
	assert.False(t, ok, "relaunch must not inherit the session")
	require.NotNil(t, proc.exitCode)
	assert.Equal(t, 0, *proc.exitCode)
}

func TestRelaunchAppStartFailure(t *testing.T) {
	h, proc, _ := newTestHost(Config{})
	proc.startErr = errors.New("permission denied")

	err := h.RelaunchApp()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Nil(t, proc.exitCode, "must not exit when the new process did not start")
}

func TestRelaunchAppExecutableError(t *testing.T) {
	proc := &fakeProcess{}
	h := New(Config{
		Process:    proc,
		Executable: func() (string, error) { return "", errors.New("no /proc") },
	})

	assert.Error(t, h.RelaunchApp())
	assert.Empty(t, proc.starts)
}

func TestWithEnv(t *testing.T) {
	env := []string{"A=1", "HOIST_SESSION_ID=old", "B=2"}

	assert.Equal(t, []string{"A=1", "B=2", "HOIST_SESSION_ID=new"}, withEnv(env, "HOIST_SESSION_ID", "new"))
	assert.Equal(t, []string{"A=1", "B=2"}, withEnv(env, "HOIST_SESSION_ID", ""))
	assert.Equal(t, []string{"A=1", "HOIST_SESSION_ID=old", "B=2"}, env, "input must not be modified")
}
