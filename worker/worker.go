package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shorts-site/analysis"
	"shorts-site/events"
	"shorts-site/jobs"
	"shorts-site/render"
	"shorts-site/storage"
	"shorts-site/ytdlp"
)

type Store interface {
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status jobs.Status, progress *jobs.Progress) (*jobs.Job, error)
	UpdateJobProgress(ctx context.Context, id string, p jobs.Progress) error
	CompleteJob(ctx context.Context, id string, result jobs.Result) (*jobs.Job, error)
	FailJob(ctx context.Context, id string, info jobs.ErrorInfo) (*jobs.Job, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	UpdateClipTitle(ctx context.Context, jobID, clipID, title string) (*jobs.Job, error)
}

type Queue interface {
	Dequeue(ctx context.Context) (*jobs.Job, error)
	Complete(id string)
	Fail(id string)
}

type Downloader interface {
	DownloadVideo(ctx context.Context, ref, destDir string, onProgress func(percent float64)) (ytdlp.Download, error)
	Cleanup(path string)
}

type Analyzer interface {
	AnalyzeVideo(ctx context.Context, sourcePath string, maxClips int, idealDuration float64) (analysis.Analysis, error)
}

type Renderer interface {
	GenerateClips(ctx context.Context, sourcePath string, scenes []analysis.Scene, outputDir string, opts render.BatchOptions, onProgress func(index int, percent float64)) []render.GeneratedClip
	AddTitleToClip(ctx context.Context, clipPath, thumbPath, title string, opts render.TitleOptions, onProgress func(percent float64)) error
}

type SubtitleGenerator interface {
	GenerateSubtitles(ctx context.Context, videoPath, outputDir string) (string, error)
}

type TitleGenerator interface {
	GenerateClipTitles(ctx context.Context, sourceTitle string, count int) ([]string, error)
}

type ProgressCache interface {
	Set(ctx context.Context, jobID string, status jobs.Status, p jobs.Progress) error
}

// Deps are the collaborators a Worker drives. Subtitles and Titles may be
// nil, which skips those stages. Events and Cache default to no-ops.
type Deps struct {
	Store      Store
	Queue      Queue
	Downloader Downloader
	Analyzer   Analyzer
	Renderer   Renderer
	Storage    storage.Storage
	Subtitles  SubtitleGenerator
	Titles     TitleGenerator
	Events     events.Publisher
	Cache      ProgressCache
}

type nopCache struct{}

func (nopCache) Set(context.Context, string, jobs.Status, jobs.Progress) error { return nil }

// Worker runs one job at a time through download, analysis and rendering.
type Worker struct {
	Deps
	pollInterval time.Duration
	log          *logrus.Entry
	now          func() time.Time

	mu           sync.Mutex
	activeID     string
	activeCancel context.CancelFunc

	// serializes title regeneration
	regenMu sync.Mutex
}

func New(deps Deps, pollInterval time.Duration, log *logrus.Entry) *Worker {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Cache == nil {
		deps.Cache = nopCache{}
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		Deps:         deps,
		pollInterval: pollInterval,
		log:          log,
		now:          time.Now,
	}
}

// Run polls for work once immediately and then every poll interval until ctx
// is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infoln("worker started, polling every", w.pollInterval)
	w.drain(ctx)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Infoln("worker stopped")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes queued jobs until none is left.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil && w.Tick(ctx) {
	}
}

// Tick dequeues and processes at most one job. It reports whether a job was
// processed.
func (w *Worker) Tick(ctx context.Context) bool {
	job, err := w.Queue.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Errorln("dequeue:", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	w.process(ctx, job)
	return true
}

// Cancel marks a job cancelled and stops its pipeline if it is running. It
// reports whether the job is now cancelled.
func (w *Worker) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := w.Store.CancelJob(ctx, jobID)
	if err != nil || !ok {
		return ok, err
	}

	w.mu.Lock()
	if w.activeID == jobID && w.activeCancel != nil {
		w.log.Infoln("stopping running job", jobID)
		w.activeCancel()
	}
	w.mu.Unlock()

	if j, err := w.Store.GetJob(ctx, jobID); err == nil {
		w.announce(ctx, events.TypeCancelled, j)
	}
	return true, nil
}

// Active returns the id of the job being processed, if any.
func (w *Worker) Active() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID, w.activeID != ""
}

func (w *Worker) setActive(id string, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeID = id
	w.activeCancel = cancel
}

func (w *Worker) process(parent context.Context, job *jobs.Job) {
	log := w.log.WithField("job", job.ID)
	ctx, cancel := context.WithCancel(parent)
	w.setActive(job.ID, cancel)
	defer func() {
		w.setActive("", nil)
		cancel()
	}()

	started, err := w.Store.UpdateJobStatus(ctx, job.ID, jobs.StatusProcessing,
		&jobs.Progress{Stage: jobs.StageDownloading, Percentage: 0, Message: "Starting download"})
	if err != nil {
		if errors.Is(err, jobs.ErrCancelled) {
			log.Infoln("job was cancelled before it started")
		} else {
			log.Errorln("start job:", err)
		}
		w.Queue.Fail(job.ID)
		return
	}
	w.announce(ctx, events.TypeStatus, started)
	log.Infoln("processing", started.SourceRef)

	sink := &storeSink{
		ctx:       ctx,
		jobID:     job.ID,
		store:     w.Store,
		cache:     w.Cache,
		events:    w.Events,
		log:       log,
		cancel:    cancel,
		now:       w.now,
		last:      started.Progress,
		lastWrite: w.now(),
	}
	begin := w.now()
	result, err := w.runPipeline(ctx, started, sink, log)

	// finish even when the job context is gone
	done := context.WithoutCancel(parent)
	switch {
	case parent.Err() != nil:
		log.Warnln("shutting down, returning job to the queue")
		requeued, err := w.Store.UpdateJobStatus(done, job.ID, jobs.StatusQueued, nil)
		switch {
		case err == nil:
			w.mirror(done, requeued)
		case errors.Is(err, jobs.ErrCancelled):
			w.discard(done, job.ID, log)
		default:
			log.Errorln("requeue:", err)
		}
		w.Queue.Fail(job.ID)

	case ctx.Err() != nil || errors.Is(err, jobs.ErrCancelled):
		w.discard(done, job.ID, log)
		w.Queue.Fail(job.ID)

	case err != nil:
		info := errorInfo(err)
		log.Errorf("job failed (%s): %v", info.Code, err)
		failed, ferr := w.Store.FailJob(done, job.ID, info)
		if errors.Is(ferr, jobs.ErrCancelled) {
			w.discard(done, job.ID, log)
		} else if ferr != nil {
			log.Errorln("record failure:", ferr)
		} else {
			w.announce(done, events.TypeFailed, failed)
		}
		w.Queue.Fail(job.ID)

	default:
		completed, cerr := w.Store.CompleteJob(done, job.ID, *result)
		if errors.Is(cerr, jobs.ErrCancelled) {
			w.discard(done, job.ID, log)
			w.Queue.Fail(job.ID)
			return
		}
		if cerr != nil {
			log.Errorln("record result:", cerr)
			w.Queue.Fail(job.ID)
			return
		}
		log.Infof("job completed with %d clips in %s", len(result.Clips), w.now().Sub(begin).Round(time.Second))
		w.announce(done, events.TypeCompleted, completed)
		w.Queue.Complete(job.ID)
	}
}

// discard removes what a cancelled job left behind.
func (w *Worker) discard(ctx context.Context, jobID string, log *logrus.Entry) {
	log.Infoln("job cancelled, removing its files")
	if err := w.Storage.DeleteFile(ctx, storage.JobDirKey(jobID)); err != nil {
		log.Warnln("remove job files:", err)
	}
	j, err := w.Store.GetJob(ctx, jobID)
	if err != nil {
		log.Warnln("reload cancelled job:", err)
		return
	}
	w.mirror(ctx, j)
}

// mirror copies the stored status and progress of j into the progress cache.
func (w *Worker) mirror(ctx context.Context, j *jobs.Job) {
	if err := w.Cache.Set(ctx, j.ID, j.Status, j.Progress); err != nil {
		w.log.Debugln("progress cache:", err)
	}
}

func (w *Worker) announce(ctx context.Context, t events.Type, j *jobs.Job) {
	w.mirror(ctx, j)
	if err := w.Events.Publish(ctx, events.FromJob(t, j)); err != nil {
		w.log.Warnln("publish", t, "event:", err)
	}
}
