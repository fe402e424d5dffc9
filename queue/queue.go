package queue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"shorts-site/jobs"
)

// Source is the part of the job store the queue relies on.
type Source interface {
	CreateJob(ctx context.Context, sourceRef string, opts jobs.Options) (*jobs.Job, error)
	GetNextQueuedJob(ctx context.Context) (*jobs.Job, error)
}

// Queue admits jobs and hands them out one at a time. It is an in-process
// flag, so only one Queue may drive a given store.
type Queue struct {
	store Source
	log   *logrus.Entry

	mu      sync.Mutex
	busy    bool
	current string
}

func New(store Source, log *logrus.Entry) *Queue {
	return &Queue{store: store, log: log}
}

// Enqueue records a new queued job. It does not change the busy state.
func (q *Queue) Enqueue(ctx context.Context, sourceRef string, opts jobs.Options) (*jobs.Job, error) {
	return q.store.CreateJob(ctx, sourceRef, opts)
}

// Dequeue returns the oldest queued job and marks the queue busy. It returns
// nil while busy or when nothing is waiting.
func (q *Queue) Dequeue(ctx context.Context) (*jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy {
		return nil, nil
	}
	j, err := q.store.GetNextQueuedJob(ctx)
	if err != nil || j == nil {
		return nil, err
	}
	q.busy = true
	q.current = j.ID
	q.log.Debugln("dequeued job", j.ID)
	return j, nil
}

func (q *Queue) Complete(id string) {
	q.release(id, "completed")
}

func (q *Queue) Fail(id string) {
	q.release(id, "failed")
}

func (q *Queue) release(id, how string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != "" && q.current != id {
		q.log.Warnf("releasing queue for %s while %s was in flight", id, q.current)
	}
	q.log.Debugln("job", id, how, ", queue idle")
	q.busy = false
	q.current = ""
}

func (q *Queue) IsBusy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Current returns the id of the job in flight, if any.
func (q *Queue) Current() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, q.busy
}
