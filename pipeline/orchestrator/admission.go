// Package orchestrator drives restyle jobs through the staged pipeline:
// generation, extraction, matching and aggregation. It owns admission
// control, per-stage retries, between-stage cancellation, restart recovery
// and retention cleanup.
package orchestrator

import (
	"context"
)

// AdmissionQueue bounds the number of jobs admitted but not yet picked up by
// a worker. A slot is reserved before the job row is created, so a full
// queue rejects synchronously with nothing persisted.
type AdmissionQueue struct {
	slots chan struct{}
	jobs  chan string
}

// NewAdmissionQueue creates a queue holding at most capacity waiting jobs.
func NewAdmissionQueue(capacity int) *AdmissionQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &AdmissionQueue{
		slots: make(chan struct{}, capacity),
		jobs:  make(chan string, capacity),
	}
}

// TryReserve claims a slot without blocking. Every successful reservation
// must be followed by exactly one Enqueue or Release.
func (q *AdmissionQueue) TryReserve() bool {
	select {
	case q.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot reserved with TryReserve that was never enqueued.
func (q *AdmissionQueue) Release() {
	select {
	case <-q.slots:
	default:
	}
}

// Enqueue hands a reserved job to the workers. The send cannot block because
// every enqueued job holds a slot.
func (q *AdmissionQueue) Enqueue(jobID string) {
	q.jobs <- jobID
}

// Dequeue blocks until a job is available or ctx is done. The slot frees as
// the job is handed over, so capacity bounds waiting jobs only.
func (q *AdmissionQueue) Dequeue(ctx context.Context) (string, bool) {
	select {
	case jobID := <-q.jobs:
		<-q.slots
		return jobID, true
	case <-ctx.Done():
		return "", false
	}
}

// Depth returns the number of jobs waiting for a worker.
func (q *AdmissionQueue) Depth() int {
	return len(q.jobs)
}

// Capacity returns the maximum number of waiting jobs.
func (q *AdmissionQueue) Capacity() int {
	return cap(q.jobs)
}
