package engine

import (
	"context"
	"errors"
	"fmt"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/source"
	"sync"
	"time"

	"go.uber.org/zap"
)

// run drives one job from running to a terminal state. It is the only
// goroutine that moves the job between states.
func (r *Registry) run(ctx context.Context, job *Job, f Flow, parallel int, opts Options) {
	items, err := r.produce(ctx, job, f)
	if err == nil {
		job.doneDiscovering()
		err = r.execute(ctx, job, f, items, parallel, opts)
	}

	// Release the flow's session before waiters on Done are woken.
	if closeErr := f.Close(); closeErr != nil {
		logger.Log.Warn("failed to close flow",
			zap.String("id", job.ID()),
			zap.Error(closeErr))
	}

	r.complete(ctx, job, err)
}

func (r *Registry) produce(ctx context.Context, job *Job, f Flow) ([]model.WorkItem, error) {
	produceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-job.cancelCh:
			cancel()
		case <-produceCtx.Done():
		}
	}()

	var items []model.WorkItem
	err := f.Produce(produceCtx, func(item model.WorkItem) {
		if produceCtx.Err() != nil {
			return
		}
		items = append(items, item)
		job.addItem(item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover items: %w", err)
	}

	if job.CancelRequested() {
		return nil, context.Canceled
	}

	return items, nil
}

// execute runs items with at most parallel in flight. A slot is taken before
// the cancel flag is checked, so with one slot the check always happens after
// the previous item has finished.
func (r *Registry) execute(ctx context.Context, job *Job, f Flow, items []model.WorkItem, parallel int, opts Options) error {
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	var fatalMu sync.Mutex
	var fatal error
	failed := func() bool {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		return fatal != nil
	}

	for _, item := range items {
		sem <- struct{}{}

		if job.CancelRequested() || ctx.Err() != nil || failed() {
			<-sem
			break
		}

		wg.Add(1)
		go func(item model.WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.runItem(ctx, job, f, item, opts); err != nil {
				fatalMu.Lock()
				if fatal == nil {
					fatal = err
				}
				fatalMu.Unlock()
			}
		}(item)
	}

	wg.Wait()

	return fatal
}

// runItem executes one item with retries. It returns an error only when the
// source connection is gone and the job cannot continue.
func (r *Registry) runItem(ctx context.Context, job *Job, f Flow, item model.WorkItem, opts Options) error {
	job.beginItem(item)
	started := time.Now()

	var err error
	for attempt := 0; attempt <= opts.ItemRetries; attempt++ {
		err = r.attempt(ctx, job, f, item, opts.ItemTimeout)
		if err == nil {
			break
		}

		if source.IsConnectionError(err) {
			logger.Log.Error("source connection lost",
				zap.String("id", job.ID()),
				zap.String("item", item.Ref),
				zap.Error(err))
			return err
		}

		if errors.Is(err, ErrItemTimeout) || ctx.Err() != nil || !source.IsTransferError(err) || attempt == opts.ItemRetries {
			break
		}

		logger.Log.Debug("retrying item",
			zap.String("id", job.ID()),
			zap.String("item", item.Ref),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if err != nil {
		logger.Log.Warn("item failed",
			zap.String("id", job.ID()),
			zap.String("item", item.Ref),
			zap.Error(err))
	}

	job.finishItem(item, err, time.Since(started))
	return nil
}

func (r *Registry) attempt(ctx context.Context, job *Job, f Flow, item model.WorkItem, timeout time.Duration) error {
	itemCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		itemCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	progress := job.newItemProgress(item)
	err := f.Execute(itemCtx, item, progress)
	if err == nil {
		return nil
	}

	progress.rollback()

	if errors.Is(itemCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s: %w", ErrItemTimeout, timeout, err)
	}

	return err
}

// complete settles the terminal state from the outcome of the run and hands
// the final snapshot to the recorder.
func (r *Registry) complete(ctx context.Context, job *Job, err error) {
	state := model.JobStateCompleted
	var fatal string

	switch {
	case err != nil && source.IsConnectionError(err):
		state = model.JobStateError
		fatal = err.Error()
	case job.CancelRequested() || ctx.Err() != nil:
		state = model.JobStateCancelled
	case err != nil:
		state = model.JobStateError
		fatal = err.Error()
	}

	if !job.finish(state, fatal) {
		return
	}
	defer job.closeDone()

	snap := job.Snapshot()

	logger.Log.Info("job finished",
		zap.String("id", snap.JobID),
		zap.String("owner", snap.OwnerID),
		zap.String("kind", string(snap.Kind)),
		zap.String("state", string(snap.State)),
		zap.Int("completed", snap.ItemsCompleted),
		zap.Int("total", snap.ItemsTotal),
		zap.Int("errors", len(snap.Errors)),
		zap.Int64("bytes", snap.BytesTransferred))

	if r.recorder == nil {
		return
	}

	if err := r.recorder.Save(snap); err != nil {
		logger.Log.Warn("failed to save job history",
			zap.String("id", snap.JobID),
			zap.Error(err))
	}
}
