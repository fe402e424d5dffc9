package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrClipNotFound      = errors.New("clip not found")
	ErrCancelled         = errors.New("job was cancelled")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// errUnchanged aborts a mutation without writing.
var errUnchanged = errors.New("unchanged")

type Store struct {
	db  *gorm.DB
	log *logrus.Entry
	now func() time.Time
}

func NewStore(db *gorm.DB, log *logrus.Entry) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&jobRow{})
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateJob stores a new queued job.
func (s *Store) CreateJob(ctx context.Context, sourceRef string, opts Options) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	j := &Job{
		ID:        generateID(),
		SourceRef: sourceRef,
		Status:    StatusQueued,
		Progress:  Progress{Stage: StageDownloading, Percentage: 0, Message: "Job queued"},
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	row, err := toRow(j)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Infof("job %s queued for %s", j.ID, sourceRef)
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

type ListFilter struct {
	Status Status
	Limit  int
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	q := s.db.WithContext(ctx).Model(&jobRow{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []jobRow
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(rows))
	for _, row := range rows {
		j, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// GetNextQueuedJob returns the oldest queued job, or nil when none is waiting.
// A queued row that cannot be decoded is marked failed and skipped.
func (s *Store) GetNextQueuedJob(ctx context.Context) (*Job, error) {
	for {
		var row jobRow
		err := s.db.WithContext(ctx).
			Where("status = ?", StatusQueued).
			Order("created_at ASC, id ASC").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		j, err := fromRow(row)
		if err == nil {
			return j, nil
		}
		s.log.Errorf("failing undecodable queued job %s: %v", row.ID, err)
		if err := s.quarantine(ctx, row, err); err != nil {
			return nil, err
		}
	}
}

// quarantine rewrites a corrupt row as failed, with columns that decode again.
func (s *Store) quarantine(ctx context.Context, row jobRow, cause error) error {
	info := ErrorInfo{Message: "Stored job could not be read", Code: CodePipelineError, Details: cause.Error()}
	errBlob, err := encodeBlob(info)
	if err != nil {
		return err
	}
	progress, err := encodeBlob(Progress{Stage: StageError, Percentage: 0, Message: info.Message})
	if err != nil {
		return err
	}
	updates := map[string]any{
		"status":     StatusFailed,
		"progress":   progress,
		"error":      errBlob,
		"result":     nil,
		"updated_at": s.now(),
	}
	var opts Options
	if decodeBlob(row.Options, &opts) != nil {
		if updates["options"], err = encodeBlob(DefaultOptions()); err != nil {
			return err
		}
	}
	res := s.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ? AND status = ?", row.ID, StatusQueued).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("fail corrupt job %s: %w", row.ID, res.Error)
	}
	return nil
}

// UpdateJobStatus moves a job to status, optionally replacing its progress.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status Status, progress *Progress) (*Job, error) {
	return s.mutate(ctx, id, func(j *Job) error {
		if j.Status != status {
			if err := transitionErr(j.Status, status); err != nil {
				return err
			}
		}
		s.log.Debugln("job", id, "status", j.Status, "->", status)
		j.Status = status
		if progress != nil {
			j.Progress = *progress
		}
		return nil
	})
}

// UpdateJobProgress replaces the progress of an active job. It returns
// ErrCancelled once the job has been cancelled.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, p Progress) error {
	_, err := s.mutate(ctx, id, func(j *Job) error {
		if j.Status.IsTerminal() {
			return transitionErr(j.Status, j.Status)
		}
		j.Progress = p
		return nil
	})
	return err
}

func (s *Store) CompleteJob(ctx context.Context, id string, result Result) (*Job, error) {
	return s.mutate(ctx, id, func(j *Job) error {
		if err := transitionErr(j.Status, StatusCompleted); err != nil {
			return err
		}
		j.Status = StatusCompleted
		j.Result = &result
		j.Error = nil
		j.Progress = Progress{Stage: StageDone, Percentage: 100, Message: fmt.Sprintf("Generated %d clips", len(result.Clips))}
		return nil
	})
}

func (s *Store) FailJob(ctx context.Context, id string, info ErrorInfo) (*Job, error) {
	return s.mutate(ctx, id, func(j *Job) error {
		if err := transitionErr(j.Status, StatusFailed); err != nil {
			return err
		}
		j.Status = StatusFailed
		j.Error = &info
		j.Result = nil
		j.Progress = Progress{Stage: StageError, Percentage: 0, Message: info.Message}
		return nil
	})
}

// CancelJob marks a job cancelled unless it already completed or failed. It
// reports whether the job is now cancelled.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	_, err := s.mutate(ctx, id, func(j *Job) error {
		switch j.Status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			return errUnchanged
		}
		j.Status = StatusCancelled
		j.Progress.Message = "Job cancelled"
		return nil
	})
	if errors.Is(err, errUnchanged) {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return false, err
		}
		return j.Status == StatusCancelled, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Infof("job %s cancelled", id)
	return true, nil
}

// UpdateClipTitle sets the title of one clip in a job's result, leaving the
// other clips and their order as they were.
func (s *Store) UpdateClipTitle(ctx context.Context, jobID, clipID, title string) (*Job, error) {
	return s.mutate(ctx, jobID, func(j *Job) error {
		if j.Result == nil {
			return ErrClipNotFound
		}
		clip, ok := j.Result.Clip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		clip.Title = title
		return nil
	})
}

// RequeueStale puts jobs left in processing by a previous run back in the
// queue.
func (s *Store) RequeueStale(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&jobRow{}).
		Where("status = ?", StatusProcessing).
		Updates(map[string]any{"status": StatusQueued, "updated_at": s.now()})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Warnf("requeued %d jobs interrupted while processing", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// mutate loads a job, applies fn and writes it back in one transaction.
func (s *Store) mutate(ctx context.Context, id string, fn func(j *Job) error) (*Job, error) {
	var out *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row jobRow
		err := tx.Where("id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		j, err := fromRow(row)
		if err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		j.UpdatedAt = s.now()
		updated, err := toRow(j)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		j.UpdatedAt = updated.UpdatedAt
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func transitionErr(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from == StatusCancelled {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
