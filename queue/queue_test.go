package queue

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"shorts-site/database"
	"shorts-site/jobs"
)

func newTestQueue(t *testing.T) (*Queue, *jobs.Store) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	l := logrus.New()
	l.SetOutput(io.Discard)
	store := jobs.NewStore(db, logrus.NewEntry(l))
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(store, logrus.NewEntry(l)), store
}

const ref = "https://www.youtube.com/watch?v=abc123"

func TestDequeueIsExclusive(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, ref, jobs.DefaultOptions())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, ref, jobs.DefaultOptions()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.IsBusy() {
		t.Fatalf("enqueue must not mark the queue busy")
	}

	j, err := q.Dequeue(ctx)
	if err != nil || j == nil || j.ID != first.ID {
		t.Fatalf("expected first job, got %v %v", j, err)
	}
	again, err := q.Dequeue(ctx)
	if err != nil || again != nil {
		t.Fatalf("expected nothing while busy, got %v %v", again, err)
	}
	if !q.IsBusy() {
		t.Fatalf("expected busy")
	}

	q.Fail(first.ID)
	if q.IsBusy() {
		t.Fatalf("expected idle after Fail")
	}
}

func TestDequeueEmptyStaysIdle(t *testing.T) {
	q, _ := newTestQueue(t)
	j, err := q.Dequeue(context.Background())
	if err != nil || j != nil {
		t.Fatalf("expected no job, got %v %v", j, err)
	}
	if q.IsBusy() {
		t.Fatalf("empty dequeue must not mark the queue busy")
	}
}

func TestConcurrentDequeueHandsOutOneJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, ref, jobs.DefaultOptions())
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if j, _ := q.Dequeue(ctx); j != nil {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if got != 1 {
		t.Fatalf("expected exactly one job handed out, got %d", got)
	}
	id, busy := q.Current()
	if !busy || id == "" {
		t.Fatalf("expected a current job")
	}
	q.Complete(id)
	if _, busy := q.Current(); busy {
		t.Fatalf("expected idle after Complete")
	}
}
