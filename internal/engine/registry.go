package engine

import (
	"context"
	"fmt"
	"slices"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options are the executor limits. They are read once per job when it starts.
type Options struct {
	ItemTimeout time.Duration
	ItemRetries int
	ETAWindow   int
	Concurrency map[model.Kind]int
}

func (o Options) concurrencyFor(kind model.Kind) int {
	if n := o.Concurrency[kind]; n > 0 {
		return n
	}
	return 1
}

type jobKey struct {
	ownerID string
	kind    model.Kind
}

// Registry holds at most one live job per owner and kind.
type Registry struct {
	mu     sync.Mutex
	jobs   map[jobKey]*Job
	closed bool

	optsMu sync.RWMutex
	opts   Options

	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(opts Options, recorder Recorder) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		jobs:     make(map[jobKey]*Job),
		opts:     opts,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Registry) Options() Options {
	r.optsMu.RLock()
	defer r.optsMu.RUnlock()
	return r.opts
}

// SetOptions replaces the limits used by jobs started from now on.
func (r *Registry) SetOptions(opts Options) {
	r.optsMu.Lock()
	defer r.optsMu.Unlock()
	r.opts = opts
}

// Start admits a new job for ownerID running f. The registry owns f from
// here on and closes it, even when the job is rejected.
func (r *Registry) Start(ctx context.Context, ownerID string, f Flow) (*Job, error) {
	if err := ctx.Err(); err != nil {
		_ = f.Close()
		return nil, err
	}

	key := jobKey{ownerID: ownerID, kind: f.Kind()}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = f.Close()
		return nil, ErrShuttingDown
	}

	if existing, ok := r.jobs[key]; ok && !existing.Terminal() {
		r.mu.Unlock()
		_ = f.Close()
		return nil, &AlreadyRunningError{
			OwnerID: ownerID,
			Kind:    key.kind,
			JobID:   existing.ID(),
		}
	}

	opts := r.Options()
	parallel := max(min(opts.concurrencyFor(key.kind), f.Parallelism()), 1)

	job := newJob(uuid.NewString(), ownerID, key.kind, opts.ETAWindow)
	job.markRunning(parallel)
	r.jobs[key] = job
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.run(r.ctx, job, f, parallel, opts)
	}()

	logger.Log.Info("job started",
		zap.String("id", job.ID()),
		zap.String("owner", ownerID),
		zap.String("kind", string(key.kind)))

	return job, nil
}

// Get returns the current or last job for the key. A terminal job stays
// here until the next Start for the same key replaces it.
func (r *Registry) Get(ownerID string, kind model.Kind) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobKey{ownerID: ownerID, kind: kind}]
	if !ok {
		return nil, fmt.Errorf("%s job for %s: %w", kind, ownerID, ErrJobNotFound)
	}

	return job, nil
}

// RequestCancel asks the job to stop at the next item boundary. Cancelling a
// finished job succeeds without effect.
func (r *Registry) RequestCancel(ownerID string, kind model.Kind) error {
	job, err := r.Get(ownerID, kind)
	if err != nil {
		return err
	}

	job.requestCancel()

	logger.Log.Info("job cancel requested",
		zap.String("id", job.ID()),
		zap.String("owner", ownerID),
		zap.String("kind", string(kind)))

	return nil
}

// Active lists snapshots of every job that has not finished, oldest first.
func (r *Registry) Active() []model.JobSnapshot {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	snaps := make([]model.JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snap := job.Snapshot()
		if !snap.State.Terminal() {
			snaps = append(snaps, snap)
		}
	}

	slices.SortFunc(snaps, func(a, b model.JobSnapshot) int {
		return a.StartedAt.Compare(b.StartedAt)
	})

	return snaps
}

// Shutdown refuses new jobs, asks every running job to cancel and waits for
// them. When ctx expires first, in-flight items are aborted through their
// contexts and Shutdown still waits for the workers to return.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	for _, job := range jobs {
		job.requestCancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		logger.Log.Warn("shutdown deadline reached, aborting running items")
		r.cancel()
		<-done
		return ctx.Err()
	}
}
