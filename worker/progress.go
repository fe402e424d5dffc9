package worker

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shorts-site/events"
	"shorts-site/jobs"
)

// ProgressSink receives stage progress for one job.
type ProgressSink interface {
	Report(stage jobs.Stage, percent float64, message string) error
}

const progressInterval = time.Second

// storeSink writes progress to the job store, the cache and the event
// publisher. Percentages never go backwards and writes within one stage are
// throttled to one per progressInterval unless they advance a whole point.
type storeSink struct {
	ctx    context.Context
	jobID  string
	store  Store
	cache  ProgressCache
	events events.Publisher
	log    *logrus.Entry
	cancel context.CancelFunc
	now    func() time.Time

	mu        sync.Mutex
	last      jobs.Progress
	lastWrite time.Time
}

func (s *storeSink) Report(stage jobs.Stage, percent float64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	percent = math.Min(math.Max(percent, s.last.Percentage), 100)
	p := jobs.Progress{Stage: stage, Percentage: math.Round(percent*10) / 10, Message: message}
	if p == s.last {
		return nil
	}
	now := s.now()
	if stage == s.last.Stage && p.Percentage-s.last.Percentage < 1 && now.Sub(s.lastWrite) < progressInterval {
		return nil
	}

	err := s.store.UpdateJobProgress(s.ctx, s.jobID, p)
	if errors.Is(err, jobs.ErrCancelled) {
		s.log.Infoln("job was cancelled, stopping")
		s.cancel()
		return err
	}
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warnln("progress update failed:", err)
		}
		return err
	}
	s.last = p
	s.lastWrite = now

	if err := s.cache.Set(s.ctx, s.jobID, jobs.StatusProcessing, p); err != nil {
		s.log.Debugln("progress cache:", err)
	}
	if err := s.events.Publish(s.ctx, events.Event{
		Type:     events.TypeProgress,
		JobID:    s.jobID,
		Status:   jobs.StatusProcessing,
		Progress: &p,
		Time:     now.UTC(),
	}); err != nil {
		s.log.Debugln("progress event:", err)
	}
	return nil
}

func (s *storeSink) Last() jobs.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
