package ftp

import (
	"context"
	"errors"
	"io"
	"net/textproto"
	"streamjobs/internal/source"
	"strings"
	"sync"
	"testing"
	"time"

	goftp "github.com/jlaffaye/ftp"
)

type fakeConn struct {
	entries map[string][]*goftp.Entry
	listErr error
	retrErr error
	noopErr error
	stream  dataStream
	quits   int
	aborts  int
}

func (f *fakeConn) List(p string) ([]*goftp.Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries[p], nil
}

func (f *fakeConn) Retr(p string) (dataStream, error) {
	if f.retrErr != nil {
		return nil, f.retrErr
	}
	return f.stream, nil
}

func (f *fakeConn) Abort() {
	f.aborts++
}

func (f *fakeConn) NoOp() error {
	return f.noopErr
}

func (f *fakeConn) Quit() error {
	f.quits++
	return nil
}

func TestSession_List(t *testing.T) {
	mod := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conn := &fakeConn{entries: map[string][]*goftp.Entry{
		"/videos": {
			{Name: ".", Type: goftp.EntryTypeFolder},
			{Name: "..", Type: goftp.EntryTypeFolder},
			{Name: "intro.MP4", Type: goftp.EntryTypeFile, Size: 1024, Time: mod},
			{Name: "2023", Type: goftp.EntryTypeFolder, Size: 4096},
		},
	}}
	sess := &Session{conn: conn}

	entries, err := sess.List(context.Background(), "videos/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "/videos/intro.MP4" || entries[0].Size != 1024 || !entries[0].ModTime.Equal(mod) {
		t.Errorf("unexpected file entry: %+v", entries[0])
	}
	if !entries[1].IsDir || entries[1].Size != 0 {
		t.Errorf("unexpected dir entry: %+v", entries[1])
	}
}

func TestSession_ErrorClassification(t *testing.T) {
	replyErr := &textproto.Error{Code: 550, Msg: "No such file or directory"}
	netErr := errors.New("read tcp: connection reset by peer")

	tests := []struct {
		name     string
		conn     *fakeConn
		wantConn bool
	}{
		{name: "server reply", conn: &fakeConn{listErr: replyErr, retrErr: replyErr}},
		{name: "network error but server answers", conn: &fakeConn{listErr: netErr, retrErr: netErr}},
		{name: "dead connection", conn: &fakeConn{listErr: netErr, retrErr: netErr, noopErr: netErr}, wantConn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &Session{conn: tt.conn}

			_, err := sess.List(context.Background(), "/x")
			if got := source.IsConnectionError(err); got != tt.wantConn {
				t.Errorf("List: connection error = %v, want %v (%v)", got, tt.wantConn, err)
			}

			_, err = sess.Fetch(context.Background(), "/x/a.mp4")
			if got := source.IsConnectionError(err); got != tt.wantConn {
				t.Errorf("Fetch: connection error = %v, want %v (%v)", got, tt.wantConn, err)
			}
			if !tt.wantConn && !source.IsTransferError(err) {
				t.Errorf("Fetch: expected TransferError, got %v", err)
			}

			// the session lock must be released after a failed fetch
			if _, err := sess.List(context.Background(), "/x"); err == nil {
				t.Error("expected List error from fake")
			}
		})
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	sess := &Session{conn: conn}

	_ = sess.Close()
	_ = sess.Close()

	if conn.quits != 1 {
		t.Errorf("expected 1 quit, got %d", conn.quits)
	}

	if _, err := sess.List(context.Background(), "/"); !source.IsConnectionError(err) {
		t.Errorf("expected ConnectionError on closed session, got %v", err)
	}
}

// stalledData is a RETR body whose server stopped sending.
type stalledData struct {
	unblock chan struct{}
	once    sync.Once
	closed  bool
}

func newStalledData() *stalledData {
	return &stalledData{unblock: make(chan struct{})}
}

func (d *stalledData) Read(p []byte) (int, error) {
	<-d.unblock
	return 0, errors.New("i/o timeout")
}

func (d *stalledData) SetDeadline(time.Time) error {
	d.once.Do(func() { close(d.unblock) })
	return nil
}

func (d *stalledData) Close() error {
	d.closed = true
	return nil
}

func TestSession_FetchStalledTransferTimesOut(t *testing.T) {
	data := newStalledData()
	first := &fakeConn{stream: data}
	second := &fakeConn{entries: map[string][]*goftp.Entry{
		"/videos": {{Name: "a.mp4", Type: goftp.EntryTypeFile, Size: 3}},
	}}

	redials := 0
	sess := &Session{
		conn: first,
		redial: func(ctx context.Context) (serverConn, error) {
			redials++
			return second, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rc, err := sess.Fetch(ctx, "/videos/a.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

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
		t.Fatal("stalled RETR was not interrupted")
	}

	_ = rc.Close()
	if !data.closed || first.aborts != 1 {
		t.Errorf("closed=%v aborts=%d, want data closed and control aborted", data.closed, first.aborts)
	}

	entries, err := sess.List(context.Background(), "/videos")
	if err != nil {
		t.Fatalf("List after aborted fetch: %v", err)
	}
	if len(entries) != 1 || redials != 1 || first.quits != 1 {
		t.Errorf("entries=%d redials=%d quits=%d, want 1/1/1", len(entries), redials, first.quits)
	}
}

func TestSession_FetchCompletedKeepsConnection(t *testing.T) {
	conn := &fakeConn{stream: &bodyStream{Reader: strings.NewReader("abc")}}
	sess := &Session{conn: conn}

	rc, err := sess.Fetch(context.Background(), "/a.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	b, err := io.ReadAll(rc)
	if err != nil || string(b) != "abc" {
		t.Fatalf("ReadAll = %q, %v", b, err)
	}
	_ = rc.Close()

	if conn.aborts != 0 || sess.stale {
		t.Error("a finished transfer must not reset the session")
	}
}

type bodyStream struct {
	*strings.Reader
}

func (b *bodyStream) SetDeadline(time.Time) error { return nil }
func (b *bodyStream) Close() error                { return nil }
