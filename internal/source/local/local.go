package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"streamjobs/internal/model"
	"streamjobs/internal/source"
	"streamjobs/internal/util"
)

// Connector exposes a directory on the daemon host as a remote source. Paths
// handed to the session are relative to that directory.
type Connector struct{}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Connect(ctx context.Context, creds source.Credentials) (source.Session, error) {
	info, err := os.Stat(creds.Root)
	if err != nil {
		return nil, &source.ConnectionError{Msg: "source folder not found", Err: err}
	}

	if !info.IsDir() {
		return nil, &source.ConnectionError{Msg: fmt.Sprintf("%s is not a folder", creds.Root)}
	}

	return &Session{root: creds.Root}, nil
}

type Session struct {
	root string
}

func (s *Session) List(ctx context.Context, dir string) ([]model.Entry, error) {
	dir = source.Clean(dir)
	full, err := util.SafeJoin(s.root, dir)
	if err != nil {
		return nil, &source.PathError{Path: dir, Err: err}
	}

	if err := s.alive(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, &source.PathError{Path: dir, Err: err}
	}

	entries := make([]model.Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		info, err := d.Info()
		if err != nil {
			continue
		}

		entry := model.Entry{
			Name:    d.Name(),
			Path:    path.Join(dir, d.Name()),
			IsDir:   d.IsDir(),
			ModTime: info.ModTime(),
		}
		if !d.IsDir() {
			entry.Size = info.Size()
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *Session) Fetch(ctx context.Context, file string) (io.ReadCloser, error) {
	file = source.Clean(file)
	full, err := util.SafeJoin(s.root, file)
	if err != nil {
		return nil, &source.TransferError{Path: file, Err: err}
	}

	if err := s.alive(); err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, &source.TransferError{Path: file, Err: err}
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		return nil, &source.TransferError{Path: file, Err: fmt.Errorf("not a regular file")}
	}

	return source.ContextReader(ctx, f, nil), nil
}

func (s *Session) Close() error {
	return nil
}

func (s *Session) alive() error {
	if _, err := os.Stat(s.root); err != nil {
		return &source.ConnectionError{Msg: "source folder is no longer available", Err: err}
	}

	return nil
}
