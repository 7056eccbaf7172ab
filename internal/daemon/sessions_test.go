package daemon

import (
	"context"
	"errors"
	"io"
	"streamjobs/internal/model"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"
	"sync/atomic"
	"testing"
)

type stubSession struct {
	closed atomic.Bool
	dead   bool
}

func (s *stubSession) List(ctx context.Context, dir string) ([]model.Entry, error) {
	if s.dead {
		return nil, &source.ConnectionError{Msg: "connection lost"}
	}
	return []model.Entry{{Name: "clip.mp4", Path: "/clip.mp4", Size: 3}}, nil
}

func (s *stubSession) Fetch(ctx context.Context, file string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

type stubConnector struct {
	sessions []*stubSession
}

func (c *stubConnector) Connect(ctx context.Context, creds source.Credentials) (source.Session, error) {
	s := &stubSession{}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func newStubManager() (*SessionManager, *stubConnector) {
	conn := &stubConnector{}
	sources := source.NewRegistry()
	sources.Register("ftp", conn)
	return NewSessionManager(sources), conn
}

var stubCreds = source.Credentials{Protocol: "ftp", Host: "ftp.example.com", Port: 21, Username: "user"}

func TestSessionManager_ConnectReplacesPrevious(t *testing.T) {
	m, conn := newStubManager()
	ctx := context.Background()

	if _, err := m.Connect(ctx, "owner-1", stubCreds); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := m.Connect(ctx, "owner-1", stubCreds); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if len(conn.sessions) != 2 {
		t.Fatalf("expected two dials, got %d", len(conn.sessions))
	}
	if !conn.sessions[0].closed.Load() {
		t.Error("previous session should be closed")
	}
	if conn.sessions[1].closed.Load() {
		t.Error("current session must stay open")
	}

	entries, err := m.List(ctx, "owner-1", "")
	if err != nil || len(entries) != 1 {
		t.Errorf("unexpected listing %v %v", entries, err)
	}

	m.CloseAll()
	if !conn.sessions[1].closed.Load() {
		t.Error("CloseAll should close every session")
	}
	if _, err := m.List(ctx, "owner-1", "/"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSessionManager_DropsDeadSession(t *testing.T) {
	m, conn := newStubManager()
	ctx := context.Background()

	if _, err := m.Connect(ctx, "owner-1", stubCreds); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.sessions[0].dead = true

	_, err := m.Scan(ctx, "owner-1", "/", scanner.New(scanner.Options{Extensions: []string{"mp4"}}))
	if !source.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !conn.sessions[0].closed.Load() {
		t.Error("dead session should be closed")
	}
	if err := m.Disconnect("owner-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected the dead session to be gone, got %v", err)
	}
}
