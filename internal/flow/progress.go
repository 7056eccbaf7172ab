package flow

import (
	"io"
	"streamjobs/internal/engine"
)

// countingReader forwards bytes read to the job progress and remembers read
// failures so they can be told apart from write failures.
type countingReader struct {
	r        io.Reader
	progress engine.Progress
	total    int64
	read     int64
	err      error
}

func newCountingReader(r io.Reader, progress engine.Progress, total int64) *countingReader {
	return &countingReader{r: r, progress: progress, total: total}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.progress.AddBytes(int64(n))
		if c.total > 0 {
			c.progress.SetPercent(int(min(c.read*100/c.total, 100)))
		}
	}
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}
