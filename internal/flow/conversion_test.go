package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"streamjobs/internal/ffmpeg"
	"streamjobs/internal/model"
	"sync"
	"testing"
)

type fakeTranscoder struct {
	mu      sync.Mutex
	inputs  []string
	presets []string
	fail    string
}

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath, outputPath string, preset ffmpeg.Preset, onProgress func(int)) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, inputPath)
	f.presets = append(f.presets, preset.Name)
	f.mu.Unlock()

	if filepath.Base(inputPath) == f.fail {
		return errors.New("ffmpeg failed: exit status 1")
	}

	onProgress(50)
	return os.WriteFile(outputPath, []byte("converted"), 0644)
}

func TestConversion(t *testing.T) {
	media := t.TempDir()
	writeFile(t, filepath.Join(media, "show", "ep1.mkv"), "raw1")
	writeFile(t, filepath.Join(media, "show", "ep2.avi"), "raw2")

	tc := &fakeTranscoder{fail: "ep2.avi"}
	factory := NewFactory(Deps{MediaRoot: media, Transcoder: tc})

	f, err := factory.New(model.KindConversion, StartRequest{
		VideoIDs: []string{"show/ep1.mkv", "/show/ep2.avi"},
		Preset:   "480p",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := runFlow(t, f)
	if snap.State != model.JobStateCompleted || snap.ItemsCompleted != 2 {
		t.Fatalf("unexpected result: %s %d/%d", snap.State, snap.ItemsCompleted, snap.ItemsTotal)
	}
	if len(snap.Errors) != 1 || snap.Errors[0].ItemRef != "show/ep2.avi" {
		t.Fatalf("expected ep2 to fail, got %v", snap.Errors)
	}
	if snap.BytesTransferred != int64(len("converted")) {
		t.Errorf("unexpected bytes %d", snap.BytesTransferred)
	}

	if _, err := os.Stat(filepath.Join(media, "show", "ep1_480p.mp4")); err != nil {
		t.Errorf("expected converted output next to source: %v", err)
	}
	for _, p := range tc.presets {
		if p != "480p" {
			t.Errorf("unexpected preset %s", p)
		}
	}
}

func TestConversion_Validation(t *testing.T) {
	media := t.TempDir()
	writeFile(t, filepath.Join(media, "ok.mp4"), "x")
	writeFile(t, filepath.Join(media, "dir", "inner.mp4"), "x")

	deps := Deps{MediaRoot: media, Transcoder: &fakeTranscoder{}}

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"unknown preset", StartRequest{VideoIDs: []string{"ok.mp4"}, Preset: "4k"}},
		{"no videos", StartRequest{Preset: "720p"}},
		{"missing video", StartRequest{VideoIDs: []string{"nope.mp4"}, Preset: "720p"}},
		{"directory", StartRequest{VideoIDs: []string{"dir"}, Preset: "720p"}},
		{"escape", StartRequest{VideoIDs: []string{"../../etc/passwd"}, Preset: "720p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversion(deps, tt.req)
			if _, ok := errors.AsType[*ValidationError](err); !ok {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestConversion_DuplicateVideosConvertOnce(t *testing.T) {
	media := t.TempDir()
	writeFile(t, filepath.Join(media, "show", "ep1.mkv"), "raw1")

	tc := &fakeTranscoder{}
	f, err := NewConversion(Deps{MediaRoot: media, Transcoder: tc}, StartRequest{
		VideoIDs: []string{"show/ep1.mkv", "/show/ep1.mkv", "show/../show/ep1.mkv"},
		Preset:   "720p",
	})
	if err != nil {
		t.Fatalf("NewConversion: %v", err)
	}

	snap := runFlow(t, f)
	if snap.ItemsTotal != 1 || snap.ItemsCompleted != 1 {
		t.Fatalf("expected a single item, got %d/%d", snap.ItemsCompleted, snap.ItemsTotal)
	}
	if len(tc.inputs) != 1 {
		t.Errorf("transcoder ran %d times", len(tc.inputs))
	}
}
