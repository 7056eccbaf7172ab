package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const authorizeTimeout = 2 * time.Minute

// Authorize runs the browser consent flow against a loopback redirect on
// addr and stores the resulting token.
func (p *Provider) Authorize(ctx context.Context, addr string, out io.Writer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for callback: %w", err)
	}

	cfg := *p.config
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{Handler: callbackHandler(state, codeCh, errCh)}
	go func() { _ = srv.Serve(ln) }()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("token_access_type", "offline"))

	_, _ = fmt.Fprintf(out, "Visit the URL for the auth dialog:\n\n%s\n\n", authURL)

	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	select {
	case code := <-codeCh:
		token, err := cfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange token: %w", err)
		}
		if err := p.saveToken(token); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%s token saved to %s\n", p.Name, p.tokenPath())
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("authorization timed out")
		}
		return ctx.Err()
	}
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var err error
		switch {
		case q.Get("state") != state:
			err = errors.New("oauth state mismatch")
		case q.Get("error") != "":
			err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			err = errors.New("callback carried no code")
		}

		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case codeCh <- q.Get("code"):
		default:
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintln(w, "<h2>Authentication complete. You can close this window.</h2>")
	})
	return mux
}
