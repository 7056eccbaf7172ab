package gdrive

import (
	"errors"
	"fmt"
	"net/http"
	"streamjobs/internal/source"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestSplitPath(t *testing.T) {
	if got := splitPath("/"); got != nil {
		t.Errorf("expected nil for root, got %v", got)
	}

	got := splitPath("/videos/2024/")
	if len(got) != 2 || got[0] != "videos" || got[1] != "2024" {
		t.Errorf("unexpected split: %v", got)
	}
}

func TestEscapeName(t *testing.T) {
	if got := escapeName("it's"); got != `it\'s` {
		t.Errorf("unexpected escape: %s", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	unauthorized := &googleapi.Error{Code: http.StatusUnauthorized}

	if !isNotFound(notFound) {
		t.Error("expected wrapped 404 to be not found")
	}
	if isNotFound(errors.New("plain")) {
		t.Error("plain error is not a 404")
	}
	if !isAuthError(unauthorized) {
		t.Error("expected 401 to be an auth error")
	}

	s := &Session{}
	if err := s.wrap("/a.mp4", unauthorized, true); !source.IsConnectionError(err) {
		t.Errorf("expected ConnectionError, got %v", err)
	}
	if err := s.wrap("/a.mp4", notFound, true); !source.IsTransferError(err) {
		t.Errorf("expected TransferError, got %v", err)
	}
}
