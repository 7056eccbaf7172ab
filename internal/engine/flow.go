package engine

import (
	"context"
	"streamjobs/internal/model"
)

// Progress is handed to a flow for the item it is executing.
type Progress interface {
	// AddBytes records n more bytes written for the current item.
	AddBytes(n int64)
	// SetSize reports the real size of the current item once it is known.
	SetSize(n int64)
	// SetPercent reports progress inside the current item, 0-100.
	SetPercent(p int)
	SetPhase(p model.Phase)
}

// Flow is the per-kind unit of work the executor drives. A flow is used by
// exactly one job and is closed when that job ends.
type Flow interface {
	Kind() model.Kind
	// Parallelism is the most items the flow can run at once.
	Parallelism() int
	// Produce emits the work items in the order they must run.
	Produce(ctx context.Context, emit func(model.WorkItem)) error
	Execute(ctx context.Context, item model.WorkItem, progress Progress) error
	Close() error
}

type Recorder interface {
	Save(snap model.JobSnapshot) error
}
