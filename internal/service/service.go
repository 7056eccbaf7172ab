// Package service registers the daemon to start at login.
package service

import (
	"fmt"
	"os/exec"
	"runtime"
)

const Name = "streamjobs"

type Installer interface {
	Install(execPath string) error
	Uninstall() error
	Installed() (bool, error)
}

func New() (Installer, error) {
	switch runtime.GOOS {
	case "linux":
		return &systemdUser{run: runCommand}, nil
	case "windows":
		return &scheduledTask{run: runCommand}, nil
	default:
		return nil, fmt.Errorf("autostart is not supported on %s", runtime.GOOS)
	}
}

type runner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %s %v: %w\n%s", name, args, err, out)
	}
	return nil
}
