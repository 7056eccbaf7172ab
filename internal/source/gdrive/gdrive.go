package gdrive

import (
	"context"
	"fmt"
	"io"
	"path"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/source"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Connector reads a Google Drive through an OAuth access token supplied by
// the caller.
type Connector struct{}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Connect(ctx context.Context, creds source.Credentials) (source.Session, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})

	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, &source.ConnectionError{Msg: "failed to create gdrive service", Err: err}
	}

	about, err := svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		return nil, &source.ConnectionError{Msg: "Google Drive rejected the access token", Err: err}
	}

	email := ""
	if about.User != nil {
		email = about.User.EmailAddress
	}
	logger.Log.Info("gdrive session opened",
		zap.String("user", email))

	return &Session{
		svc:     svc,
		idCache: map[string]string{"/": "root"},
	}, nil
}

type Session struct {
	svc *drive.Service

	mu      sync.Mutex
	idCache map[string]string
}

func (s *Session) List(ctx context.Context, dir string) ([]model.Entry, error) {
	dir = source.Clean(dir)

	folderID, err := s.resolve(ctx, dir)
	if err != nil {
		return nil, s.wrap(dir, err, false)
	}

	var entries []model.Entry
	q := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	call := s.svc.Files.List().Q(q).
		Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime)").
		OrderBy("name").
		Context(ctx)

	err = call.Pages(ctx, func(list *drive.FileList) error {
		for _, f := range list.Files {
			p := path.Join(dir, f.Name)
			isDir := f.MimeType == folderMimeType
			if isDir {
				s.remember(p, f.Id)
			}

			entry := model.Entry{
				Name:    f.Name,
				Path:    p,
				IsDir:   isDir,
				ModTime: parseModTime(f.ModifiedTime),
			}
			if !isDir {
				entry.Size = f.Size
			}

			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return nil, s.wrap(dir, err, false)
	}

	return entries, nil
}

func (s *Session) Fetch(ctx context.Context, file string) (io.ReadCloser, error) {
	file = source.Clean(file)

	fileID, err := s.resolve(ctx, file)
	if err != nil {
		return nil, s.wrap(file, err, true)
	}

	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, s.wrap(file, err, true)
	}

	return source.ContextReader(ctx, resp.Body, nil), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCache = map[string]string{"/": "root"}
	return nil
}

func (s *Session) wrap(p string, err error, transfer bool) error {
	if isAuthError(err) {
		return &source.ConnectionError{Msg: "Google Drive session expired", Err: err}
	}

	if isNotFound(err) {
		err = fmt.Errorf("not found on gdrive: %w", err)
	}

	if transfer {
		return &source.TransferError{Path: p, Err: err}
	}

	return &source.PathError{Path: p, Err: err}
}

// resolve walks p one segment at a time, caching the ids it discovers.
func (s *Session) resolve(ctx context.Context, p string) (string, error) {
	if id, ok := s.cached(p); ok {
		return id, nil
	}

	parentID := "root"
	current := "/"
	for _, name := range splitPath(p) {
		current = path.Join(current, name)
		if id, ok := s.cached(current); ok {
			parentID = id
			continue
		}

		id, err := s.findChild(ctx, name, parentID)
		if err != nil {
			return "", err
		}

		s.remember(current, id)
		parentID = id
	}

	return parentID, nil
}

func (s *Session) findChild(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false", escapeName(name), parentID)

	list, err := s.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", err
	}

	if len(list.Files) == 0 {
		return "", fmt.Errorf("not found: %s", name)
	}

	return list.Files[0].Id, nil
}

func (s *Session) cached(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idCache[p]
	return id, ok
}

func (s *Session) remember(p, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idCache[p] = id
}
