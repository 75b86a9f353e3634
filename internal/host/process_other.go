//go:build windows

package host

import (
	"os"
	"os/exec"

	"github.com/juju/errors"
)

type osProcess struct{}

func (osProcess) Exec(path string, args, env []string) error {
	return errors.NotSupportedf("in-place reload on windows")
}

func (osProcess) Start(path string, args, env []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func (osProcess) Exit(code int) {
	os.Exit(code)
}
