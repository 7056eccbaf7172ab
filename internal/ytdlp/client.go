package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

type Client struct {
	Binary    string
	UserAgent string
}

func NewClient(binary, userAgent string) *Client {
	if binary == "" {
		binary = "yt-dlp"
	}

	return &Client{Binary: binary, UserAgent: userAgent}
}

type DownloadOptions struct {
	URL       string
	OutputDir string
	Progress  func(Progress)
}

// Download fetches one URL into OutputDir, which should be empty, and
// returns the path of the file yt-dlp produced.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (string, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return "", fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return "", fmt.Errorf("output directory is required")
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		"--no-part",
		"-P", opts.OutputDir,
		"-o", "%(title).200B_[%(id)s].%(ext)s",
		"-f", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b",
		"--merge-output-format", "mp4",
	}
	if c.UserAgent != "" {
		args = append(args, "--user-agent", c.UserAgent)
	}
	args = append(args, opts.URL)

	handle := func(stream OutputStream, line string) {
		if opts.Progress == nil {
			return
		}
		if p, ok := ParseProgressLine(line); ok {
			opts.Progress(p)
		}
	}

	if err := c.run(ctx, args, handle); err != nil {
		return "", err
	}

	return largestFile(opts.OutputDir)
}

func (c *Client) run(ctx context.Context, args []string, onLine func(OutputStream, string)) error {
	cmd := exec.CommandContext(ctx, c.Binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			if stream == StreamStderr {
				mu.Lock()
				appendLimited(&errBuf, line)
				mu.Unlock()
			}
			onLine(stream, line)
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download directory: %w", err)
	}

	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") || strings.HasSuffix(e.Name(), ".ytdl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}

	if best == "" {
		return "", fmt.Errorf("yt-dlp produced no file in %s", dir)
	}
	return best, nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string) {
	const maxKeep = 8192
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	if remain := maxKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
