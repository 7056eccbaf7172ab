// Package auth obtains and refreshes OAuth tokens for the cloud sources.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

const (
	GDrive  = "gdrive"
	Dropbox = "dropbox"
)

// ErrNotAuthorized is returned when no token has been stored for a provider.
var ErrNotAuthorized = errors.New("not authorized")

var dropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

type dropboxApp struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

// Provider holds the OAuth client of one cloud source and the directory its
// credentials and token live in.
type Provider struct {
	Name   string
	dir    string
	config *oauth2.Config
}

// Load reads <name>_credentials.json from dir.
func Load(dir, name string) (*Provider, error) {
	b, err := os.ReadFile(filepath.Join(dir, name+"_credentials.json"))
	if err != nil {
		return nil, fmt.Errorf("%s_credentials.json not found in %s: %w", name, dir, err)
	}

	var cfg *oauth2.Config
	switch name {
	case GDrive:
		cfg, err = google.ConfigFromJSON(b, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse gdrive credentials: %w", err)
		}
	case Dropbox:
		var app dropboxApp
		if err := json.Unmarshal(b, &app); err != nil {
			return nil, fmt.Errorf("failed to parse dropbox credentials: %w", err)
		}
		cfg = &oauth2.Config{
			ClientID:     app.AppKey,
			ClientSecret: app.AppSecret,
			Endpoint:     dropboxEndpoint,
			Scopes:       []string{"files.metadata.read", "files.content.read"},
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	return &Provider{Name: name, dir: dir, config: cfg}, nil
}

func (p *Provider) tokenPath() string {
	return filepath.Join(p.dir, p.Name+"_token.json")
}

func (p *Provider) saveToken(token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}

	if err := os.WriteFile(p.tokenPath(), b, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (p *Provider) loadToken() (*oauth2.Token, error) {
	b, err := os.ReadFile(p.tokenPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w, run 'streamjobs auth %s' first", p.Name, ErrNotAuthorized, p.Name)
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, fmt.Errorf("failed to parse %s token: %w", p.Name, err)
	}

	return &token, nil
}

// AccessToken returns a valid access token, refreshing and persisting the
// stored one when it has expired.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	token, err := p.loadToken()
	if err != nil {
		return "", err
	}

	fresh, err := p.config.TokenSource(ctx, token).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh %s token: %w", p.Name, err)
	}

	if fresh.AccessToken != token.AccessToken {
		if err := p.saveToken(fresh); err != nil {
			return "", err
		}
	}

	return fresh.AccessToken, nil
}
