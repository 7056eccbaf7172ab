package dropbox

import (
	"context"
	"fmt"
	"io"
	"path"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/source"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
	"go.uber.org/zap"
)

type Connector struct{}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Connect(ctx context.Context, creds source.Credentials) (source.Session, error) {
	cfg := dropbox.Config{Token: creds.Token}

	account, err := users.New(cfg).GetCurrentAccount()
	if err != nil {
		return nil, &source.ConnectionError{Msg: "Dropbox rejected the access token", Err: err}
	}

	logger.Log.Info("dropbox session opened",
		zap.String("account", account.Email))

	return &Session{client: files.New(cfg)}, nil
}

// Session is safe for concurrent use; the SDK client holds no per-call state.
type Session struct {
	client files.Client
}

func (s *Session) List(ctx context.Context, dir string) ([]model.Entry, error) {
	dir = source.Clean(dir)

	res, err := s.client.ListFolder(files.NewListFolderArg(apiPath(dir)))
	if err != nil {
		return nil, s.wrap(dir, err, false)
	}

	var entries []model.Entry
	for {
		for _, meta := range res.Entries {
			switch m := meta.(type) {
			case *files.FileMetadata:
				entries = append(entries, model.Entry{
					Name:    m.Name,
					Path:    path.Join(dir, m.Name),
					Size:    int64(m.Size),
					ModTime: m.ServerModified,
				})
			case *files.FolderMetadata:
				entries = append(entries, model.Entry{
					Name:  m.Name,
					Path:  path.Join(dir, m.Name),
					IsDir: true,
				})
			}
		}

		if !res.HasMore {
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err = s.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, s.wrap(dir, err, false)
		}
	}

	return entries, nil
}

type download struct {
	content io.ReadCloser
	err     error
}

// Fetch starts the download in the background because the SDK call takes no
// context. A body that arrives after ctx ended is closed unread.
func (s *Session) Fetch(ctx context.Context, file string) (io.ReadCloser, error) {
	file = source.Clean(file)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan download, 1)
	go func() {
		_, content, err := s.client.Download(files.NewDownloadArg(apiPath(file)))
		done <- download{content: content, err: err}
	}()

	select {
	case d := <-done:
		if d.err != nil {
			return nil, s.wrap(file, d.err, true)
		}
		return source.ContextReader(ctx, d.content, nil), nil
	case <-ctx.Done():
		go func() {
			if d := <-done; d.content != nil {
				_ = d.content.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (s *Session) Close() error {
	return nil
}

func (s *Session) wrap(p string, err error, transfer bool) error {
	if isAuthError(err) {
		return &source.ConnectionError{Msg: "Dropbox session expired", Err: err}
	}

	if isNotFound(err) {
		err = fmt.Errorf("not found on dropbox: %w", err)
	}

	if transfer {
		return &source.TransferError{Path: p, Err: err}
	}

	return &source.PathError{Path: p, Err: err}
}
