package service

import "fmt"

const taskName = "StreamjobsDaemon"

type scheduledTask struct {
	run runner
}

func (t *scheduledTask) Install(execPath string) error {
	if err := t.run("schtasks", "/Create",
		"/TN", taskName,
		"/TR", fmt.Sprintf(`"%s" daemon`, execPath),
		"/SC", "ONLOGON",
		"/F"); err != nil {
		return fmt.Errorf("failed to register task: %w", err)
	}
	return nil
}

func (t *scheduledTask) Uninstall() error {
	if err := t.run("schtasks", "/Delete", "/TN", taskName, "/F"); err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}
	return nil
}

func (t *scheduledTask) Installed() (bool, error) {
	return t.run("schtasks", "/Query", "/TN", taskName) == nil, nil
}
