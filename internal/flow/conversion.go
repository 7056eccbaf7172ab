package flow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"streamjobs/internal/engine"
	"streamjobs/internal/ffmpeg"
	"streamjobs/internal/model"
	"streamjobs/internal/util"
)

// Conversion transcodes library videos to one preset, writing each result
// next to its source.
type Conversion struct {
	videos     []string
	preset     ffmpeg.Preset
	transcoder Transcoder
	mediaRoot  string
}

func NewConversion(deps Deps, req StartRequest) (*Conversion, error) {
	preset, ok := ffmpeg.LookupPreset(req.Preset)
	if !ok {
		return nil, &ValidationError{
			Field: "preset",
			Msg:   fmt.Sprintf("unknown preset %q, expected one of %s", req.Preset, strings.Join(ffmpeg.PresetNames(), ", ")),
		}
	}

	if deps.Transcoder == nil {
		return nil, fmt.Errorf("no transcoder configured")
	}

	mediaRoot, err := filepath.Abs(deps.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid media root: %w", err)
	}

	videos := make([]string, 0, len(req.VideoIDs))
	seen := make(map[string]bool, len(req.VideoIDs))
	for _, id := range req.VideoIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}

		full, err := util.SafeJoin(mediaRoot, id)
		if err != nil {
			return nil, &ValidationError{Field: "video_ids", Msg: err.Error()}
		}

		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			return nil, &ValidationError{Field: "video_ids", Msg: fmt.Sprintf("video %q not found", id)}
		}

		// Two items for one video would write the same output file.
		if seen[full] {
			continue
		}
		seen[full] = true

		videos = append(videos, full)
	}

	if len(videos) == 0 {
		return nil, &ValidationError{Field: "video_ids", Msg: "at least one video is required"}
	}

	return &Conversion{
		videos:     videos,
		preset:     preset,
		transcoder: deps.Transcoder,
		mediaRoot:  mediaRoot,
	}, nil
}

func (c *Conversion) Kind() model.Kind {
	return model.KindConversion
}

func (c *Conversion) Parallelism() int {
	return len(c.videos)
}

func (c *Conversion) Produce(ctx context.Context, emit func(model.WorkItem)) error {
	for _, v := range c.videos {
		ref, err := filepath.Rel(c.mediaRoot, v)
		if err != nil {
			ref = v
		}

		emit(model.WorkItem{
			Ref:         filepath.ToSlash(ref),
			Label:       filepath.Base(v),
			Destination: ffmpeg.OutputPath(v, c.preset),
		})
	}
	return nil
}

func (c *Conversion) Execute(ctx context.Context, item model.WorkItem, progress engine.Progress) error {
	progress.SetPhase(model.PhaseConverting)

	input, err := util.SafeJoin(c.mediaRoot, item.Ref)
	if err != nil {
		return err
	}

	if err := c.transcoder.Convert(ctx, input, item.Destination, c.preset, progress.SetPercent); err != nil {
		return err
	}

	info, err := os.Stat(item.Destination)
	if err != nil {
		return fmt.Errorf("failed to stat converted file: %w", err)
	}
	progress.SetSize(info.Size())
	progress.AddBytes(info.Size())

	return nil
}

func (c *Conversion) Close() error {
	return nil
}
