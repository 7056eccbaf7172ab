package daemon

import (
	"context"
	"errors"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"
	"sync"

	"go.uber.org/zap"
)

var ErrNoSession = errors.New("no open browsing session")

type browseSession struct {
	sess  source.Session
	creds source.Credentials
}

// SessionManager keeps at most one browsing session per owner. Browsing
// sessions are never handed to jobs.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*browseSession
	sources  *source.Registry
}

func NewSessionManager(sources *source.Registry) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*browseSession),
		sources:  sources,
	}
}

// Connect opens a session for owner and returns the root listing. A previous
// session of the same owner is closed once the new one is up.
func (m *SessionManager) Connect(ctx context.Context, ownerID string, creds source.Credentials) ([]model.Entry, error) {
	sess, entries, err := m.sources.Open(ctx, creds)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.sessions[ownerID]
	m.sessions[ownerID] = &browseSession{sess: sess, creds: creds}
	m.mu.Unlock()

	if prev != nil {
		_ = prev.sess.Close()
	}

	logger.Log.Info("browsing session opened",
		zap.String("owner", ownerID),
		zap.String("protocol", creds.Protocol),
		zap.String("host", creds.Host))

	return entries, nil
}

func (m *SessionManager) get(ownerID string) (*browseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bs, ok := m.sessions[ownerID]
	if !ok {
		return nil, ErrNoSession
	}
	return bs, nil
}

// drop forgets bs if it is still the owner's current session.
func (m *SessionManager) drop(ownerID string, bs *browseSession) {
	m.mu.Lock()
	if m.sessions[ownerID] == bs {
		delete(m.sessions, ownerID)
	}
	m.mu.Unlock()

	_ = bs.sess.Close()
}

func (m *SessionManager) List(ctx context.Context, ownerID, dir string) ([]model.Entry, error) {
	bs, err := m.get(ownerID)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		dir = source.RootPath(bs.creds)
	}

	entries, err := bs.sess.List(ctx, source.Clean(dir))
	if source.IsConnectionError(err) {
		m.drop(ownerID, bs)
	}
	return entries, err
}

// Scan walks dir recursively on the owner's session and returns its media.
func (m *SessionManager) Scan(ctx context.Context, ownerID, dir string, sc *scanner.Scanner) (model.ScanResult, error) {
	bs, err := m.get(ownerID)
	if err != nil {
		return model.ScanResult{}, err
	}

	if dir == "" {
		dir = source.RootPath(bs.creds)
	}

	result, err := sc.Scan(ctx, bs.sess, source.Clean(dir), nil)
	if source.IsConnectionError(err) {
		m.drop(ownerID, bs)
	}
	return result, err
}

func (m *SessionManager) Disconnect(ownerID string) error {
	bs, err := m.get(ownerID)
	if err != nil {
		return err
	}

	m.drop(ownerID, bs)

	logger.Log.Info("browsing session closed",
		zap.String("owner", ownerID))

	return nil
}

func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*browseSession)
	m.mu.Unlock()

	for _, bs := range sessions {
		_ = bs.sess.Close()
	}
}
