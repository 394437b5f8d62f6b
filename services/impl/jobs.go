package impl

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// JobTracker maps resource IDs (workspace, evaluation) to the cancel
// functions of their in-flight background jobs. Deleting a resource cancels
// its jobs; the jobs observe the cancellation at their next suspension
// point.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]map[int]context.CancelFunc
	next int
}

func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: map[uuid.UUID]map[int]context.CancelFunc{}}
}

// Track derives a cancellable context for a job owned by the given
// resources. The returned release function must be called when the job
// finishes.
func (t *JobTracker) Track(parent context.Context, resourceIDs ...uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	t.next++
	id := t.next
	for _, rid := range resourceIDs {
		if t.jobs[rid] == nil {
			t.jobs[rid] = map[int]context.CancelFunc{}
		}
		t.jobs[rid][id] = cancel
	}
	t.mu.Unlock()

	release := func() {
		cancel()
		t.mu.Lock()
		for _, rid := range resourceIDs {
			delete(t.jobs[rid], id)
			if len(t.jobs[rid]) == 0 {
				delete(t.jobs, rid)
			}
		}
		t.mu.Unlock()
	}
	return ctx, release
}

// Cancel aborts every job tracked under the resource.
func (t *JobTracker) Cancel(resourceID uuid.UUID) {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.jobs[resourceID]))
	for _, c := range t.jobs[resourceID] {
		cancels = append(cancels, c)
	}
	t.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}
