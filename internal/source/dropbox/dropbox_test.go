package dropbox

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

type fakeFiles struct {
	files.Client
	download func() (io.ReadCloser, error)
}

func (f *fakeFiles) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	content, err := f.download()
	return nil, content, err
}

func TestSession_FetchStalledBodyTimesOut(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	sess := &Session{client: &fakeFiles{download: func() (io.ReadCloser, error) { return pr, nil }}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rc, err := sess.Fetch(ctx, "/videos/a.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer func() { _ = rc.Close() }()

	errCh := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(rc)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("read err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stalled download body was not interrupted")
	}
}

func TestSession_FetchStalledRequestTimesOut(t *testing.T) {
	release := make(chan struct{})
	closed := make(chan struct{})
	pr, _ := io.Pipe()

	sess := &Session{client: &fakeFiles{download: func() (io.ReadCloser, error) {
		<-release
		return &closeNotifier{ReadCloser: pr, closed: closed}, nil
	}}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := sess.Fetch(ctx, "/videos/a.mp4"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch err = %v, want deadline exceeded", err)
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("late body was not closed")
	}
}

type closeNotifier struct {
	io.ReadCloser
	closed chan struct{}
}

func (c *closeNotifier) Close() error {
	close(c.closed)
	return c.ReadCloser.Close()
}
