package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"streamjobs/internal/model"
	"sync"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Credentials struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
	TLS      bool   `json:"tls"`
	Root     string `json:"root"`
}

// Validate checks the shape of the credentials without touching the network.
func (c Credentials) Validate() error {
	switch c.Protocol {
	case "ftp":
		if strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("%w: host is required", ErrInvalidCredentials)
		}
		if c.Port < 0 || c.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidCredentials, c.Port)
		}
		if strings.TrimSpace(c.Username) == "" {
			return fmt.Errorf("%w: username is required", ErrInvalidCredentials)
		}
	case "local":
		if strings.TrimSpace(c.Root) == "" {
			return fmt.Errorf("%w: root is required", ErrInvalidCredentials)
		}
	case "gdrive", "dropbox":
		if strings.TrimSpace(c.Token) == "" {
			return fmt.Errorf("%w: access token is required", ErrInvalidCredentials)
		}
	case "":
		return fmt.Errorf("%w: protocol is required", ErrInvalidCredentials)
	default:
		return fmt.Errorf("%w: unsupported protocol %q", ErrInvalidCredentials, c.Protocol)
	}

	return nil
}

// Connector establishes sessions against one kind of remote source.
type Connector interface {
	Connect(ctx context.Context, creds Credentials) (Session, error)
}

// Session is a live handle on a remote source. List and Fetch are plain reads
// and may be repeated on the same session.
type Session interface {
	List(ctx context.Context, dir string) ([]model.Entry, error)
	Fetch(ctx context.Context, file string) (io.ReadCloser, error)
	Close() error
}

type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

func (r *Registry) Register(protocol string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[protocol] = c
}

func (r *Registry) Connector(protocol string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidCredentials, protocol)
	}

	return c, nil
}

func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Connect validates creds and dials the matching connector.
func (r *Registry) Connect(ctx context.Context, creds Credentials) (Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	c, err := r.Connector(creds.Protocol)
	if err != nil {
		return nil, err
	}

	return c.Connect(ctx, creds)
}

// Open connects and returns the session together with the listing of the
// credentials' root directory.
func (r *Registry) Open(ctx context.Context, creds Credentials) (Session, []model.Entry, error) {
	sess, err := r.Connect(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	entries, err := sess.List(ctx, RootPath(creds))
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}

	return sess, entries, nil
}

// RootPath is the directory a session starts in. Local sessions are already
// rooted, every other protocol uses the root as an absolute remote path.
func RootPath(creds Credentials) string {
	if creds.Protocol == "local" {
		return "/"
	}

	return Clean(creds.Root)
}

// Clean normalizes a remote slash path to an absolute form.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}
