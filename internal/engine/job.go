package engine

import (
	"slices"
	"streamjobs/internal/model"
	"sync"
	"time"
)

// Job is the live state of one background operation. The executor is the
// only writer; everyone else reads through Snapshot.
type Job struct {
	mu sync.RWMutex

	id      string
	ownerID string
	kind    model.Kind

	state            model.JobState
	phase            model.Phase
	discovering      bool
	itemsTotal       int
	itemsCompleted   int
	bytesTotal       int64
	unknownSizes     int
	bytesTransferred int64
	startedAt        time.Time
	finishedAt       *time.Time
	updatedAt        time.Time
	errors           []model.ItemError
	fatalError       string
	cancelRequested  bool
	currentItem      string
	itemPercent      *int
	eta              *time.Duration

	window   *durationWindow
	parallel int

	cancelCh chan struct{}
	done     chan struct{}
}

func newJob(id, ownerID string, kind model.Kind, etaWindow int) *Job {
	now := time.Now()
	return &Job{
		id:        id,
		ownerID:   ownerID,
		kind:      kind,
		state:     model.JobStateIdle,
		startedAt: now,
		updatedAt: now,
		errors:    []model.ItemError{},
		window:    newDurationWindow(etaWindow),
		parallel:  1,
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) OwnerID() string {
	return j.ownerID
}

func (j *Job) Kind() model.Kind {
	return j.kind
}

// Done is closed once the job is terminal and its final snapshot has been
// recorded.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) State() model.JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) Terminal() bool {
	return j.State().Terminal()
}

func (j *Job) CancelRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelRequested
}

// requestCancel flips the cooperative cancel flag. It is a no-op on a
// terminal job.
func (j *Job) requestCancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() || j.cancelRequested {
		return
	}

	j.cancelRequested = true
	j.updatedAt = time.Now()
	close(j.cancelCh)
}

func (j *Job) markRunning(parallel int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state = model.JobStateRunning
	j.phase = model.PhaseDiscovering
	j.discovering = true
	j.parallel = parallel
	j.updatedAt = time.Now()
}

func (j *Job) addItem(item model.WorkItem) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.itemsTotal++
	if item.EstimatedSize > 0 {
		j.bytesTotal += item.EstimatedSize
	} else {
		j.unknownSizes++
	}
	j.updatedAt = time.Now()
}

func (j *Job) doneDiscovering() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.discovering = false
	if j.phase == model.PhaseDiscovering {
		j.phase = model.PhaseNone
	}
	j.updatedAt = time.Now()
}

func (j *Job) beginItem(item model.WorkItem) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.currentItem = item.DisplayName()
	j.itemPercent = nil
	j.updatedAt = time.Now()
}

// finishItem accounts one attempted item. Errors are appended in the order
// items finish and are never removed.
func (j *Job) finishItem(item model.WorkItem, err error, took time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return
	}

	if j.itemsCompleted < j.itemsTotal {
		j.itemsCompleted++
	}

	if err != nil {
		j.errors = append(j.errors, model.ItemError{
			ItemRef: item.Ref,
			Message: err.Error(),
		})
	}

	j.window.add(took)
	if eta, ok := j.window.estimate(j.itemsTotal-j.itemsCompleted, j.parallel); ok {
		j.eta = &eta
	}

	j.itemPercent = nil
	j.updatedAt = time.Now()
}

// finish moves the job into a terminal state. It reports false when the job
// was already terminal. The caller closes done afterwards.
func (j *Job) finish(state model.JobState, fatal string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return false
	}

	now := time.Now()
	j.state = state
	j.fatalError = fatal
	j.finishedAt = &now
	j.updatedAt = now
	j.phase = model.PhaseNone
	j.discovering = false
	j.currentItem = ""
	j.itemPercent = nil
	j.eta = nil

	return true
}

// closeDone wakes Done waiters once the terminal snapshot has been handed on.
func (j *Job) closeDone() {
	close(j.done)
}

func (j *Job) Snapshot() model.JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := model.JobSnapshot{
		JobID:            j.id,
		OwnerID:          j.ownerID,
		Kind:             j.kind,
		State:            j.state,
		Phase:            j.phase,
		Discovering:      j.discovering,
		ItemsTotal:       j.itemsTotal,
		ItemsCompleted:   j.itemsCompleted,
		BytesTransferred: j.bytesTransferred,
		StartedAt:        j.startedAt,
		UpdatedAt:        j.updatedAt,
		Errors:           slices.Clone(j.errors),
		FatalError:       j.fatalError,
		CancelRequested:  j.cancelRequested,
		CurrentItemLabel: j.currentItem,
	}

	if !j.discovering && j.unknownSizes == 0 && j.itemsTotal > 0 {
		snap.BytesTotal = new(j.bytesTotal)
	}
	if j.finishedAt != nil {
		snap.FinishedAt = new(*j.finishedAt)
	}
	if j.itemPercent != nil {
		snap.ItemPercent = new(*j.itemPercent)
	}
	if j.eta != nil {
		snap.EstimatedRemaining = new(*j.eta)
	}

	return snap
}

// itemProgress tracks one attempt of one item so a failed attempt can be
// taken back out of the job totals.
type itemProgress struct {
	job      *Job
	estimate int64
	sized    bool
	bytes    int64
}

func (j *Job) newItemProgress(item model.WorkItem) *itemProgress {
	return &itemProgress{job: j, estimate: item.EstimatedSize, sized: item.EstimatedSize > 0}
}

func (p *itemProgress) AddBytes(n int64) {
	if n <= 0 {
		return
	}

	p.job.mu.Lock()
	defer p.job.mu.Unlock()

	p.bytes += n
	p.job.bytesTransferred += n
	p.job.updatedAt = time.Now()
}

func (p *itemProgress) SetSize(n int64) {
	if n <= 0 {
		return
	}

	p.job.mu.Lock()
	defer p.job.mu.Unlock()

	if p.sized {
		p.job.bytesTotal += n - p.estimate
	} else {
		p.job.bytesTotal += n
		p.job.unknownSizes--
		p.sized = true
	}
	p.estimate = n
	p.job.updatedAt = time.Now()
}

func (p *itemProgress) SetPercent(pct int) {
	pct = min(max(pct, 0), 100)

	p.job.mu.Lock()
	defer p.job.mu.Unlock()

	p.job.itemPercent = &pct
	p.job.updatedAt = time.Now()
}

func (p *itemProgress) SetPhase(phase model.Phase) {
	p.job.mu.Lock()
	defer p.job.mu.Unlock()

	if p.job.state.Terminal() {
		return
	}

	p.job.phase = phase
	p.job.updatedAt = time.Now()
}

func (p *itemProgress) rollback() {
	p.job.mu.Lock()
	defer p.job.mu.Unlock()

	p.job.bytesTransferred -= p.bytes
	p.bytes = 0
}
