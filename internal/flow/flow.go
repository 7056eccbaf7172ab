// Package flow holds the per-kind units of work the engine drives.
package flow

import (
	"context"
	"fmt"
	"net/http"
	"streamjobs/internal/engine"
	"streamjobs/internal/ffmpeg"
	"streamjobs/internal/model"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"
	"streamjobs/internal/ytdlp"
	"sync"
)

// ValidationError rejects start parameters before any job exists.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Extractor resolves and downloads a page URL through an external tool.
type Extractor interface {
	Download(ctx context.Context, opts ytdlp.DownloadOptions) (string, error)
}

type Transcoder interface {
	Convert(ctx context.Context, inputPath, outputPath string, preset ffmpeg.Preset, onProgress func(int)) error
}

// Deps are the collaborators and limits flows are built with.
type Deps struct {
	Sources        *source.Registry
	Scan           scanner.Options
	MediaRoot      string
	StagingDir     string
	HTTPClient     *http.Client
	UserAgent      string
	Extractor      Extractor
	Transcoder     Transcoder
	DefaultBackend string
	MaxURLs        int
}

// StartRequest is the body of a start call. Each kind reads its own fields.
type StartRequest struct {
	source.Credentials
	Paths       []string `json:"paths"`
	Destination string   `json:"destination"`

	URL     string   `json:"url"`
	URLs    []string `json:"urls"`
	Backend string   `json:"backend"`

	VideoIDs []string `json:"video_ids"`
	Preset   string   `json:"preset"`
}

// Factory builds flows from start requests. Deps can be swapped at runtime
// when the configuration changes; running flows keep what they were built
// with.
type Factory struct {
	mu   sync.RWMutex
	deps Deps
}

func NewFactory(deps Deps) *Factory {
	return &Factory{deps: deps}
}

func (f *Factory) Deps() Deps {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.deps
}

func (f *Factory) SetDeps(deps Deps) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deps = deps
}

// New validates req for kind and returns a flow ready to be started.
func (f *Factory) New(kind model.Kind, req StartRequest) (engine.Flow, error) {
	deps := f.Deps()

	switch kind {
	case model.KindMigration:
		return NewMigration(deps, req)
	case model.KindDownload:
		return NewDownload(deps, req)
	case model.KindConversion:
		return NewConversion(deps, req)
	default:
		return nil, &ValidationError{Field: "kind", Msg: fmt.Sprintf("unsupported job kind %q", kind)}
	}
}
