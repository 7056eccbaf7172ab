package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"streamjobs/internal/source"
	"streamjobs/internal/source/local"
	"testing"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   source.Credentials
		wantErr bool
	}{
		{name: "ftp ok", creds: source.Credentials{Protocol: "ftp", Host: "ftp.example.com", Username: "u"}},
		{name: "ftp no host", creds: source.Credentials{Protocol: "ftp", Username: "u"}, wantErr: true},
		{name: "ftp no user", creds: source.Credentials{Protocol: "ftp", Host: "h"}, wantErr: true},
		{name: "ftp bad port", creds: source.Credentials{Protocol: "ftp", Host: "h", Username: "u", Port: 70000}, wantErr: true},
		{name: "local ok", creds: source.Credentials{Protocol: "local", Root: "/srv"}},
		{name: "local no root", creds: source.Credentials{Protocol: "local"}, wantErr: true},
		{name: "gdrive no token", creds: source.Credentials{Protocol: "gdrive"}, wantErr: true},
		{name: "dropbox ok", creds: source.Credentials{Protocol: "dropbox", Token: "t"}},
		{name: "missing protocol", creds: source.Credentials{}, wantErr: true},
		{name: "unknown protocol", creds: source.Credentials{Protocol: "sftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, source.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestRegistry_Open(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	reg := source.NewRegistry()
	reg.Register("local", local.NewConnector())

	sess, entries, err := reg.Open(context.Background(), source.Credentials{Protocol: "local", Root: root})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = sess.Close() }()

	if len(entries) != 1 || entries[0].Path != "/clip.mp4" {
		t.Errorf("unexpected root listing: %+v", entries)
	}

	if _, _, err := reg.Open(context.Background(), source.Credentials{Protocol: "ftp", Host: "h", Username: "u"}); !errors.Is(err, source.ErrInvalidCredentials) {
		t.Errorf("expected unregistered protocol to be rejected, got %v", err)
	}

	if got := reg.Protocols(); len(got) != 1 || got[0] != "local" {
		t.Errorf("unexpected protocols: %v", got)
	}
}

func TestRootPath(t *testing.T) {
	if got := source.RootPath(source.Credentials{Protocol: "local", Root: "/srv/videos"}); got != "/" {
		t.Errorf("local root path = %q", got)
	}
	if got := source.RootPath(source.Credentials{Protocol: "ftp", Root: "public_html/videos/"}); got != "/public_html/videos" {
		t.Errorf("ftp root path = %q", got)
	}
	if got := source.RootPath(source.Credentials{Protocol: "ftp"}); got != "/" {
		t.Errorf("empty root path = %q", got)
	}
}
