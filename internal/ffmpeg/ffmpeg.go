package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Preset is a target rendition. Height 0 keeps the source resolution.
type Preset struct {
	Name   string
	Height int
	CRF    int
}

var presets = []Preset{
	{Name: "240p", Height: 240, CRF: 28},
	{Name: "360p", Height: 360, CRF: 26},
	{Name: "480p", Height: 480, CRF: 24},
	{Name: "720p", Height: 720, CRF: 22},
	{Name: "1080p", Height: 1080, CRF: 20},
	{Name: "original", Height: 0, CRF: 20},
}

func LookupPreset(name string) (Preset, bool) {
	i := slices.IndexFunc(presets, func(p Preset) bool {
		return p.Name == strings.ToLower(strings.TrimSpace(name))
	})
	if i < 0 {
		return Preset{}, false
	}

	return presets[i], true
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
	}
	return names
}

// OutputPath is where a conversion of input with preset is written: next
// to the source as <name>_<preset>.mp4.
func OutputPath(input string, preset Preset) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), fmt.Sprintf("%s_%s.mp4", base, preset.Name))
}

// Converter wraps ffmpeg/ffprobe calls.
type Converter struct {
	Binary      string
	ProbeBinary string
}

func NewConverter(binary, probeBinary string) *Converter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}

	return &Converter{Binary: binary, ProbeBinary: probeBinary}
}

// Convert transcodes input into an MP4 at outputPath, reporting percent
// done through onProgress when the source duration can be probed. The
// output only appears once ffmpeg has succeeded.
func (c *Converter) Convert(ctx context.Context, inputPath, outputPath string, preset Preset, onProgress func(int)) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	duration, _ := c.probeDuration(ctx, inputPath)
	totalUs := int64(duration * 1e6)

	codec, _ := c.probeVideoCodec(ctx, inputPath)

	tmpPath := outputPath + ".tmp.mp4"
	_ = os.Remove(tmpPath)

	args := buildArgs(inputPath, tmpPath, preset, codec)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Binary, err)
	}

	readProgress(stdout, totalUs, onProgress)

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 512))
	}

	if onProgress != nil {
		onProgress(100)
	}

	_ = os.Remove(outputPath)
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move converted file: %w", err)
	}

	return nil
}

func buildArgs(inputPath, outputPath string, preset Preset, codec string) []string {
	args := []string{"-y", "-i", inputPath, "-sn", "-map", "0:v:0?", "-map", "0:a:0?", "-progress", "pipe:1", "-nostats"}

	if preset.Height == 0 && codec == "h264" {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-crf", strconv.Itoa(preset.CRF), "-pix_fmt", "yuv420p")
		if preset.Height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", preset.Height))
		}
	}

	return append(args,
		"-c:a", "aac",
		"-ac", "2",
		"-b:a", "128k",
		"-ar", "48000",
		"-f", "mp4",
		"-movflags", "+faststart",
		outputPath,
	)
}

// readProgress consumes ffmpeg's -progress key=value stream. out_time_us and
// out_time_ms both carry microseconds. Percent stays below 100 until the
// process has exited cleanly.
func readProgress(r io.Reader, totalUs int64, onProgress func(int)) {
	scanner := bufio.NewScanner(r)
	last := 0

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || totalUs <= 0 || onProgress == nil {
			continue
		}

		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}

		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}

		pct := min(int(us*100/totalUs), 99)
		if pct > last {
			last = pct
			onProgress(pct)
		}
	}
}

func (c *Converter) probeVideoCodec(ctx context.Context, inputPath string) (string, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	out, err := exec.CommandContext(ctx, c.ProbeBinary, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Converter) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	out, err := exec.CommandContext(ctx, c.ProbeBinary, args...).Output()
	if err != nil {
		return 0, err
	}
	return parseDuration(string(out))
}

func parseDuration(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("duration missing")
	}
	return strconv.ParseFloat(value, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
