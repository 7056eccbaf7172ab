package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"streamjobs/internal/engine"
	"streamjobs/internal/model"
	"streamjobs/internal/source"
	"streamjobs/internal/util"
	"streamjobs/internal/ytdlp"

	"github.com/gabriel-vasile/mimetype"
)

const (
	BackendHTTP  = "http"
	BackendYTDLP = "ytdlp"
)

// Download pulls remote URLs into a staging directory and then moves each
// finished file into the library.
type Download struct {
	urls       []*url.URL
	backend    string
	destDir    string
	stagingDir string
	client     *http.Client
	userAgent  string
	extractor  Extractor
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &ValidationError{Field: "url", Msg: fmt.Sprintf("invalid URL %q", raw)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Msg: fmt.Sprintf("URL %q must use http or https", raw)}
	}

	if u.Hostname() == "" {
		return nil, &ValidationError{Field: "url", Msg: fmt.Sprintf("URL %q has no host", raw)}
	}

	return u, nil
}

func NewDownload(deps Deps, req StartRequest) (*Download, error) {
	raw := make([]string, 0, len(req.URLs)+1)
	for _, u := range append([]string{req.URL}, req.URLs...) {
		if strings.TrimSpace(u) != "" {
			raw = append(raw, u)
		}
	}

	if len(raw) == 0 {
		return nil, &ValidationError{Field: "url", Msg: "at least one URL is required"}
	}
	if deps.MaxURLs > 0 && len(raw) > deps.MaxURLs {
		return nil, &ValidationError{Field: "urls", Msg: fmt.Sprintf("at most %d URLs per job", deps.MaxURLs)}
	}

	urls := make([]*url.URL, 0, len(raw))
	for _, r := range raw {
		u, err := ValidateURL(r)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	backend := strings.ToLower(strings.TrimSpace(req.Backend))
	if backend == "" {
		backend = deps.DefaultBackend
	}
	if backend == "" {
		backend = BackendHTTP
	}

	switch backend {
	case BackendHTTP:
	case BackendYTDLP:
		if deps.Extractor == nil {
			return nil, &ValidationError{Field: "backend", Msg: "yt-dlp backend is not available"}
		}
	default:
		return nil, &ValidationError{Field: "backend", Msg: fmt.Sprintf("unsupported backend %q", backend)}
	}

	destDir, err := util.SafeJoin(deps.MediaRoot, req.Destination)
	if err != nil {
		return nil, &ValidationError{Field: "destination", Msg: err.Error()}
	}

	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Download{
		urls:       urls,
		backend:    backend,
		destDir:    destDir,
		stagingDir: deps.StagingDir,
		client:     client,
		userAgent:  deps.UserAgent,
		extractor:  deps.Extractor,
	}, nil
}

func (d *Download) Kind() model.Kind {
	return model.KindDownload
}

func (d *Download) Parallelism() int {
	if d.backend == BackendYTDLP {
		return 1
	}
	return len(d.urls)
}

func (d *Download) Produce(ctx context.Context, emit func(model.WorkItem)) error {
	for _, u := range d.urls {
		name := nameFromURL(u)
		emit(model.WorkItem{
			Ref:         u.String(),
			Label:       name,
			Destination: name,
		})
	}
	return nil
}

func (d *Download) Execute(ctx context.Context, item model.WorkItem, progress engine.Progress) error {
	if err := os.MkdirAll(d.stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	stage, err := os.MkdirTemp(d.stagingDir, "download-*")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(stage)
	}()

	progress.SetPhase(model.PhaseDownloading)

	var staged string
	if d.backend == BackendYTDLP {
		staged, err = d.extract(ctx, item, stage, progress)
	} else {
		staged, err = d.fetch(ctx, item, stage, progress)
	}
	if err != nil {
		return err
	}

	progress.SetPhase(model.PhaseUploading)

	dst, err := claimPath(filepath.Join(d.destDir, filepath.Base(staged)))
	if err != nil {
		return err
	}

	if err := util.MoveFile(staged, dst); err != nil {
		_ = util.RemoveIfExists(dst)
		return err
	}
	return nil
}

func (d *Download) fetch(ctx context.Context, item model.WorkItem, stage string, progress engine.Progress) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Ref, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &source.TransferError{Path: item.Ref, Err: err}
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("server returned %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", &source.TransferError{Path: item.Ref, Err: err}
		}
		return "", err
	}

	if resp.ContentLength > 0 {
		progress.SetSize(resp.ContentLength)
	}

	name := responseFileName(resp, item.Destination)
	staged := filepath.Join(stage, name)

	counter := newCountingReader(resp.Body, progress, resp.ContentLength)
	if _, err := util.AtomicWrite(staged, counter); err != nil {
		if counter.err != nil {
			return "", &source.TransferError{Path: item.Ref, Err: counter.err}
		}
		return "", err
	}

	return sniff(staged)
}

// sniff rejects HTML pages served in place of media and gives extensionless
// downloads the extension their content implies.
func sniff(staged string) (string, error) {
	mtype, err := mimetype.DetectFile(staged)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}

	if mtype.Is("text/html") || mtype.Is("application/xhtml+xml") {
		return "", fmt.Errorf("server sent %s instead of a video", mtype.String())
	}

	if filepath.Ext(staged) != "" || mtype.Extension() == "" {
		return staged, nil
	}

	renamed := staged + mtype.Extension()
	if err := os.Rename(staged, renamed); err != nil {
		return "", fmt.Errorf("failed to rename download: %w", err)
	}
	return renamed, nil
}

func (d *Download) extract(ctx context.Context, item model.WorkItem, stage string, progress engine.Progress) (string, error) {
	staged, err := d.extractor.Download(ctx, ytdlp.DownloadOptions{
		URL:       item.Ref,
		OutputDir: stage,
		Progress: func(p ytdlp.Progress) {
			if p.TotalBytes > 0 {
				progress.SetSize(p.TotalBytes)
			}
			progress.SetPercent(p.Percent)
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &source.TransferError{Path: item.Ref, Err: err}
	}

	info, err := os.Stat(staged)
	if err != nil {
		return "", fmt.Errorf("failed to stat download: %w", err)
	}
	progress.SetSize(info.Size())
	progress.AddBytes(info.Size())

	return staged, nil
}

func (d *Download) Close() error {
	return nil
}

// nameFromURL guesses a file name before the response headers are known.
func nameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		host, _, err := net.SplitHostPort(u.Host)
		if err != nil {
			host = u.Host
		}
		name = host
	}
	return sanitizeName(name)
}

func responseFileName(resp *http.Response, fallback string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return sanitizeName(params["filename"])
		}
	}

	return sanitizeName(fallback)
}

func sanitizeName(name string) string {
	name = filepath.Base(filepath.FromSlash(strings.TrimSpace(name)))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "download"
	}
	return name
}

// claimPath creates an empty placeholder at p, or at p with " (n)" before
// the extension when p is taken, and returns its name. Creating with O_EXCL
// keeps parallel items from picking the same name.
func claimPath(p string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create destination dir: %w", err)
	}

	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)

	candidate := p
	for i := 1; i < 1000; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_ = f.Close()
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to claim %s: %w", candidate, err)
		}
		candidate = base + " (" + strconv.Itoa(i) + ")" + ext
	}

	return "", fmt.Errorf("no free file name for %s", p)
}
