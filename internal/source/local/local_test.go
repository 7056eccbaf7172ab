package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"streamjobs/internal/source"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConnect_MissingRoot(t *testing.T) {
	_, err := NewConnector().Connect(context.Background(), source.Credentials{
		Protocol: "local",
		Root:     filepath.Join(t.TempDir(), "missing"),
	})
	if !source.IsConnectionError(err) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestSession_ListAndFetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"), "aaaa")
	writeFile(t, filepath.Join(root, "sub", "b.mkv"), "bb")

	sess, err := NewConnector().Connect(context.Background(), source.Credentials{Protocol: "local", Root: root})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() { _ = sess.Close() }()

	entries, err := sess.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "/a.mp4" || entries[0].Size != 4 || entries[0].IsDir {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Path != "/sub" || !entries[1].IsDir {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	rc, err := sess.Fetch(context.Background(), "/sub/b.mkv")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "bb" {
		t.Errorf("unexpected content %q", b)
	}
}

func TestSession_Errors(t *testing.T) {
	root := t.TempDir()
	sess, err := NewConnector().Connect(context.Background(), source.Credentials{Protocol: "local", Root: root})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sess.List(context.Background(), "/nope"); err == nil {
		t.Error("expected PathError")
	} else if _, ok := err.(*source.PathError); !ok {
		t.Errorf("expected *PathError, got %T", err)
	}

	if _, err := sess.Fetch(context.Background(), "/nope.mp4"); !source.IsTransferError(err) {
		t.Errorf("expected TransferError, got %v", err)
	}

	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Fetch(context.Background(), "/x.mp4"); !source.IsConnectionError(err) {
		t.Errorf("expected ConnectionError after root removal, got %v", err)
	}
}

func TestSession_FetchHonorsContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp4"), "aaaa")

	sess, _ := NewConnector().Connect(context.Background(), source.Credentials{Protocol: "local", Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	rc, err := sess.Fetch(ctx, "/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rc.Close() }()

	cancel()
	if _, err := rc.Read(make([]byte, 4)); err == nil {
		t.Error("expected read to fail after cancel")
	}
}
