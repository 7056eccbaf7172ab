package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// deadliner is implemented by network streams that can unblock a pending
// Read without tearing down the connection behind them.
type deadliner interface {
	SetDeadline(t time.Time) error
}

type contextReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	onClose func()
	stop    func() bool
	once    sync.Once
}

// ContextReader ties rc to ctx: when ctx ends, a Read blocked on rc returns
// with ctx's error. Streams with SetDeadline get an expired deadline, all
// others are closed. onClose, if set, runs exactly once after the underlying
// reader is closed.
func ContextReader(ctx context.Context, rc io.ReadCloser, onClose func()) io.ReadCloser {
	r := &contextReader{ctx: ctx, rc: rc, onClose: onClose}
	r.stop = context.AfterFunc(ctx, r.abort)
	return r
}

func (r *contextReader) abort() {
	if d, ok := r.rc.(deadliner); ok && d.SetDeadline(time.Now()) == nil {
		return
	}
	_ = r.rc.Close()
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := r.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
	}

	return n, err
}

func (r *contextReader) Close() error {
	var err error
	r.once.Do(func() {
		r.stop()
		err = r.rc.Close()
		if r.onClose != nil {
			r.onClose()
		}
	})

	return err
}
