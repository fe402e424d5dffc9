package jobs

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusProcessing: true,
		StatusFailed:     true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusQueued:    true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Stage string

const (
	StageDownloading  Stage = "downloading"
	StageAnalyzing    Stage = "analyzing"
	StageTranscribing Stage = "transcribing"
	StageGenerating   Stage = "generating"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

type Progress struct {
	Stage      Stage   `json:"stage"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

const (
	MinClips     = 1
	MaxClips     = 10
	DefaultClips = 5
)

type Options struct {
	MaxClips         int     `json:"maxClips"`
	ClipDurationHint float64 `json:"clipDurationHint,omitempty"`
	IncludeSubtitles bool    `json:"includeSubtitles"`
	Quality          string  `json:"quality"`
}

func DefaultOptions() Options {
	return Options{
		MaxClips:         DefaultClips,
		IncludeSubtitles: true,
		Quality:          "medium",
	}
}

func (o Options) Validate() error {
	if o.MaxClips < MinClips || o.MaxClips > MaxClips {
		return fmt.Errorf("maxClips must be between %d and %d, got %d", MinClips, MaxClips, o.MaxClips)
	}
	if o.ClipDurationHint < 0 {
		return fmt.Errorf("clipDurationHint must not be negative")
	}
	switch o.Quality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("quality must be low, medium or high, got %q", o.Quality)
	}
	return nil
}

type ClipInfo struct {
	ID           string  `json:"id"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	Duration     float64 `json:"duration"`
	Score        float64 `json:"score"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	VideoURL     string  `json:"videoUrl"`
	Title        string  `json:"title,omitempty"`
}

type Result struct {
	SourceTitle    string     `json:"sourceTitle"`
	SourceDuration float64    `json:"sourceDuration"`
	Clips          []ClipInfo `json:"clips"`
}

func (r *Result) Clip(id string) (*ClipInfo, bool) {
	for i := range r.Clips {
		if r.Clips[i].ID == id {
			return &r.Clips[i], true
		}
	}
	return nil, false
}

// error codes recorded on failed jobs
const (
	CodeInvalidReference = "INVALID_REFERENCE"
	CodeInvalidOptions   = "INVALID_OPTIONS"
	CodeDownloadFailed   = "DOWNLOAD_FAILED"
	CodeMetadataFailed   = "PROBE_FAILED"
	CodeNoClipsRendered  = "NO_CLIPS_RENDERED"
	CodePipelineError    = "PIPELINE_ERROR"
)

// ErrorInfo is the user-facing description of a failed job.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type Job struct {
	ID        string     `json:"id"`
	SourceRef string     `json:"sourceRef"`
	Status    Status     `json:"status"`
	Progress  Progress   `json:"progress"`
	Options   Options    `json:"options"`
	Result    *Result    `json:"result,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
