package service

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Streamjobs media job daemon
After=network-online.target

[Service]
ExecStart="{{.ExecPath}}" daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

type systemdUser struct {
	dir string
	run runner
}

func renderUnit(execPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, map[string]string{"ExecPath": execPath}); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *systemdUser) unitPath() (string, error) {
	dir := s.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}
	return filepath.Join(dir, Name+".service"), nil
}

func (s *systemdUser) Install(execPath string) error {
	path, err := s.unitPath()
	if err != nil {
		return err
	}

	unit, err := renderUnit(execPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}

	if err := os.WriteFile(path, unit, 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	for _, args := range [][]string{
		{"--user", "daemon-reload"},
		{"--user", "enable", "--now", Name + ".service"},
	} {
		if err := s.run("systemctl", args...); err != nil {
			return err
		}
	}

	return nil
}

func (s *systemdUser) Uninstall() error {
	// Best effort, the unit may already be stopped.
	_ = s.run("systemctl", "--user", "disable", "--now", Name+".service")

	path, err := s.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}

	return s.run("systemctl", "--user", "daemon-reload")
}

func (s *systemdUser) Installed() (bool, error) {
	path, err := s.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
