//go:build !windows

package host

import (
	"os"
	"os/exec"
	"syscall"
)

type osProcess struct{}

func (osProcess) Exec(path string, args, env []string) error {
	return syscall.Exec(path, args, env)
}

func (osProcess) Start(path string, args, env []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func (osProcess) Exit(code int) {
	os.Exit(code)
}
