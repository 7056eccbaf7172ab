package flow

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"streamjobs/internal/engine"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"
	"streamjobs/internal/util"

	"go.uber.org/zap"
)

// Migration copies media from a remote source into the library. It opens
// its own session when the job starts and closes it when the job ends.
type Migration struct {
	creds   source.Credentials
	paths   []string
	destDir string
	sources *source.Registry
	scanner *scanner.Scanner

	sess source.Session
}

func NewMigration(deps Deps, req StartRequest) (*Migration, error) {
	if err := req.Credentials.Validate(); err != nil {
		return nil, &ValidationError{Field: "credentials", Msg: err.Error()}
	}

	if deps.Sources == nil {
		return nil, fmt.Errorf("no source connectors configured")
	}
	if _, err := deps.Sources.Connector(req.Protocol); err != nil {
		return nil, &ValidationError{Field: "protocol", Msg: err.Error()}
	}

	destDir, err := util.SafeJoin(deps.MediaRoot, req.Destination)
	if err != nil {
		return nil, &ValidationError{Field: "destination", Msg: err.Error()}
	}

	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		if strings.TrimSpace(p) != "" {
			paths = append(paths, source.Clean(p))
		}
	}

	return &Migration{
		creds:   req.Credentials,
		paths:   paths,
		destDir: destDir,
		sources: deps.Sources,
		scanner: scanner.New(deps.Scan),
	}, nil
}

func (m *Migration) Kind() model.Kind {
	return model.KindMigration
}

// Parallelism is 1: an FTP session has a single control connection.
func (m *Migration) Parallelism() int {
	return 1
}

func (m *Migration) Produce(ctx context.Context, emit func(model.WorkItem)) error {
	sess, err := m.sources.Connect(ctx, m.creds)
	if err != nil {
		return err
	}
	m.sess = sess

	if len(m.paths) == 0 {
		root := source.RootPath(m.creds)
		return m.scan(ctx, root, root, emit)
	}

	listings := make(map[string][]model.Entry)
	for _, p := range m.paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		parent := path.Dir(p)
		entries, ok := listings[parent]
		if !ok {
			entries, err = sess.List(ctx, parent)
			if err != nil {
				if source.IsConnectionError(err) {
					return err
				}
				logger.Log.Warn("failed to list selected path",
					zap.String("path", parent),
					zap.Error(err))
			}
			listings[parent] = entries
		}

		entry, found := findEntry(entries, path.Base(p))
		if found && entry.IsDir {
			if err := m.scan(ctx, p, parent, emit); err != nil {
				return err
			}
			continue
		}

		emit(model.WorkItem{
			Ref:           p,
			Label:         path.Base(p),
			Destination:   path.Base(p),
			EstimatedSize: entry.Size,
		})
	}

	return nil
}

// scan walks dir and emits its media, keeping the layout relative to base.
func (m *Migration) scan(ctx context.Context, dir, base string, emit func(model.WorkItem)) error {
	result, err := m.scanner.Scan(ctx, m.sess, dir, func(e model.ScanEntry) {
		emit(model.WorkItem{
			Ref:           e.Path,
			Label:         path.Base(e.Path),
			Destination:   relativeTo(base, e.Path),
			EstimatedSize: e.Size,
		})
	})
	if err != nil {
		return err
	}

	for _, f := range result.Failures {
		logger.Log.Warn("skipped unreadable directory",
			zap.String("path", f.Path),
			zap.String("error", f.Message))
	}

	if result.Partial {
		logger.Log.Warn("scan stopped early",
			zap.String("root", dir),
			zap.String("reason", result.Reason))
	}

	return nil
}

func (m *Migration) Execute(ctx context.Context, item model.WorkItem, progress engine.Progress) error {
	progress.SetPhase(model.PhaseMigrating)

	dst, err := util.SafeJoin(m.destDir, item.Destination)
	if err != nil {
		return err
	}

	rc, err := m.sess.Fetch(ctx, item.Ref)
	if err != nil {
		return err
	}

	defer func(rc io.ReadCloser) {
		_ = rc.Close()
	}(rc)

	counter := newCountingReader(rc, progress, item.EstimatedSize)
	if _, err := util.AtomicWrite(dst, counter); err != nil {
		if counter.err != nil {
			return &source.TransferError{Path: item.Ref, Err: counter.err}
		}
		return err
	}

	return nil
}

func (m *Migration) Close() error {
	if m.sess == nil {
		return nil
	}
	return m.sess.Close()
}

func findEntry(entries []model.Entry, name string) (model.Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return model.Entry{}, false
}

func relativeTo(base, p string) string {
	base = source.Clean(base)
	p = source.Clean(p)

	if base == "/" {
		return strings.TrimPrefix(p, "/")
	}
	if rel, ok := strings.CutPrefix(p, base+"/"); ok {
		return rel
	}
	return path.Base(p)
}
