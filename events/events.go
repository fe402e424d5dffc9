package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shorts-site/jobs"
)

type Type string

const (
	TypeCreated   Type = "job.created"
	TypeStatus    Type = "job.status"
	TypeProgress  Type = "job.progress"
	TypeCompleted Type = "job.completed"
	TypeFailed    Type = "job.failed"
	TypeCancelled Type = "job.cancelled"
	TypeClipTitle Type = "clip.title"
)

// Terminal reports whether no further events follow for the job.
func (t Type) Terminal() bool {
	return t == TypeCompleted || t == TypeFailed || t == TypeCancelled
}

type Event struct {
	Type     Type            `json:"type"`
	JobID    string          `json:"jobId"`
	Status   jobs.Status     `json:"status,omitempty"`
	Progress *jobs.Progress  `json:"progress,omitempty"`
	Error    *jobs.ErrorInfo `json:"error,omitempty"`
	ClipID   string          `json:"clipId,omitempty"`
	Time     time.Time       `json:"time"`
}

// FromJob builds an event of type t carrying the job's current state.
func FromJob(t Type, j *jobs.Job) Event {
	p := j.Progress
	return Event{
		Type:     t,
		JobID:    j.ID,
		Status:   j.Status,
		Progress: &p,
		Error:    j.Error,
		Time:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher in turn.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

const subscriptionBuffer = 32

type Subscription struct {
	id    uuid.UUID
	jobID string
	Ch    chan Event
}

// Broker fans events out to in-process subscribers of a job.
type Broker struct {
	mu        sync.Mutex
	listeners map[string][]*Subscription
	log       *logrus.Entry
}

func NewBroker(log *logrus.Entry) *Broker {
	return &Broker{
		listeners: map[string][]*Subscription{},
		log:       log,
	}
}

func (b *Broker) Subscribe(jobID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{
		id:    uuid.Must(uuid.NewV7()),
		jobID: jobID,
		Ch:    make(chan Event, subscriptionBuffer),
	}
	b.listeners[jobID] = append(b.listeners[jobID], s)
	b.log.Debugln("subscriber", s.id, "for job", jobID)
	return s
}

func (b *Broker) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.listeners[s.jobID]
	if !ok {
		return
	}
	kept := []*Subscription{}
	for _, old := range subs {
		if old != s {
			kept = append(kept, old)
		}
	}
	if len(kept) == 0 {
		delete(b.listeners, s.jobID)
	} else {
		b.listeners[s.jobID] = kept
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (b *Broker) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.listeners[e.JobID] {
		select {
		case s.Ch <- e:
		default:
			b.log.Debugln("subscriber", s.id, "is slow, dropped", e.Type)
		}
	}
	return nil
}

// Subscribers returns the number of subscribers for jobID.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[jobID])
}
