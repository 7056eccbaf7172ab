package scanner

import (
	"context"
	"fmt"
	"path"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/source"

	"go.uber.org/zap"
)

// CapacityExceeded prefixes ScanResult.Reason when a traversal cap stopped
// the scan. The result is partial but still valid.
const CapacityExceeded = "capacity_exceeded"

type Lister interface {
	List(ctx context.Context, dir string) ([]model.Entry, error)
}

type Options struct {
	MaxDepth   int
	MaxEntries int
	Extensions []string
	IgnoreList []string
}

type Scanner struct {
	maxDepth   int
	maxEntries int
	exts       map[string]struct{}
	ignoreList []string
}

func New(opts Options) *Scanner {
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		if e = normalizeExt(e); e != "" {
			exts[e] = struct{}{}
		}
	}

	return &Scanner{
		maxDepth:   opts.MaxDepth,
		maxEntries: opts.MaxEntries,
		exts:       exts,
		ignoreList: opts.IgnoreList,
	}
}

func (s *Scanner) IsMedia(name string) bool {
	_, ok := s.exts[extOf(name)]
	return ok
}

// MediaOnly filters a single listing down to directories and media files.
func (s *Scanner) MediaOnly(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if shouldIgnore(e.Name, s.ignoreList) {
			continue
		}
		if e.IsDir || s.IsMedia(e.Name) {
			out = append(out, e)
		}
	}

	return out
}

// Scan walks the tree under root breadth first and returns every media file
// in discovery order. emit, when not nil, sees each file as it is found.
//
// A failed listing below root is recorded and its siblings are still
// scanned. A failed root listing or a dead session ends the scan with an
// error.
func (s *Scanner) Scan(ctx context.Context, sess Lister, root string, emit func(model.ScanEntry)) (model.ScanResult, error) {
	type dirItem struct {
		path  string
		depth int
	}

	root = source.Clean(root)
	result := model.ScanResult{Entries: []model.ScanEntry{}}
	queue := []dirItem{{path: root}}
	visited := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		curr := queue[0]
		queue = queue[1:]

		entries, err := sess.List(ctx, curr.path)
		if err != nil {
			if curr.path == root || source.IsConnectionError(err) {
				return result, err
			}

			logger.Log.Warn("scan: listing failed",
				zap.String("path", curr.path),
				zap.Error(err))

			result.Failures = append(result.Failures, model.PathFailure{
				Path:    curr.path,
				Message: err.Error(),
			})
			continue
		}
		result.Directories++

		for _, e := range entries {
			visited++
			if s.maxEntries > 0 && visited > s.maxEntries {
				s.markPartial(&result, fmt.Sprintf("more than %d entries", s.maxEntries))
				return result, nil
			}

			if shouldIgnore(e.Name, s.ignoreList) {
				continue
			}

			p := e.Path
			if p == "" {
				p = path.Join(curr.path, e.Name)
			}

			if e.IsDir {
				if s.maxDepth > 0 && curr.depth+1 > s.maxDepth {
					s.markPartial(&result, fmt.Sprintf("deeper than %d levels", s.maxDepth))
					continue
				}

				queue = append(queue, dirItem{path: p, depth: curr.depth + 1})
				continue
			}

			if !s.IsMedia(e.Name) {
				continue
			}

			entry := model.ScanEntry{
				Path:            p,
				Size:            e.Size,
				ParentDirectory: curr.path,
			}
			result.Entries = append(result.Entries, entry)
			if emit != nil {
				emit(entry)
			}
		}
	}

	return result, nil
}

func (s *Scanner) markPartial(result *model.ScanResult, detail string) {
	if result.Partial {
		return
	}

	result.Partial = true
	result.Reason = CapacityExceeded + ": " + detail

	logger.Log.Warn("scan: capacity exceeded",
		zap.String("detail", detail))
}
