package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"shorts-site/events"
	"shorts-site/jobs"
	"shorts-site/publish"
	"shorts-site/storage"
	"shorts-site/titles"
	"shorts-site/ytdlp"
)

type JobStore interface {
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
	ListJobs(ctx context.Context, f jobs.ListFilter) ([]*jobs.Job, error)
}

type Queue interface {
	Enqueue(ctx context.Context, sourceRef string, opts jobs.Options) (*jobs.Job, error)
	IsBusy() bool
}

type Worker interface {
	Cancel(ctx context.Context, jobID string) (bool, error)
	RegenerateClipTitle(ctx context.Context, jobID, clipID, title string) (*jobs.Job, error)
}

type InfoFetcher interface {
	GetVideoInfo(ctx context.Context, ref string) (ytdlp.VideoInfo, error)
}

type ProgressReader interface {
	Get(ctx context.Context, jobID string) (jobs.Status, jobs.Progress, error)
}

type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, sourceTitle string, clipIndex, totalClips int) (titles.Metadata, error)
}

type Versioner interface {
	Version(ctx context.Context) (string, error)
}

// Deps wires the API to the rest of the service. Progress, Publish and
// Sessions may be nil; publishing routes then answer 503.
type Deps struct {
	Jobs     JobStore
	Queue    Queue
	Worker   Worker
	Info     InfoFetcher
	Progress ProgressReader
	Broker   *events.Broker
	Storage  storage.Storage
	Metadata MetadataGenerator
	Publish  *publish.Service
	Sessions *sessions.CookieStore
	// Tools are reported by the status endpoint, keyed by name.
	Tools map[string]Versioner
	// DataDir is measured by the status endpoint. FilesDir is served
	// under /files.
	DataDir  string
	FilesDir string
	// DefaultQuality applies to jobs that do not ask for one.
	DefaultQuality string
}

type Server struct {
	Deps
	log *logrus.Entry
}

func New(deps Deps, log *logrus.Entry) *Server {
	if deps.DefaultQuality == "" {
		deps.DefaultQuality = "medium"
	}
	return &Server{Deps: deps, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")
	api.POST("/jobs", s.CreateJob)
	api.GET("/jobs", s.ListJobs)
	api.GET("/jobs/:id", s.GetJob)
	api.GET("/jobs/:id/progress", s.GetProgress)
	api.GET("/jobs/:id/events", s.JobEvents)
	api.POST("/jobs/:id/cancel", s.CancelJob)
	api.POST("/jobs/:id/clips/:clipId/title", s.RegenerateTitle)
	api.POST("/jobs/:id/clips/:clipId/publish", s.PublishClip)
	api.GET("/info", s.VideoInfo)
	api.GET("/status", s.StatusGet)

	api.GET("/publish/connect", s.PublishConnect)
	api.GET("/publish/callback", s.PublishCallback)
	api.GET("/publish/accounts", s.PublishAccounts)
	api.POST("/publish/accounts/:id/disconnect", s.PublishDisconnect)

	if s.FilesDir != "" {
		e.Static("/files", s.FilesDir)
	}
}

// apiError is the body of every error response.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

const (
	codeNotFound        = "NOT_FOUND"
	codeConflict        = "CONFLICT"
	codeBadRequest      = "BAD_REQUEST"
	codePublishDisabled = "PUBLISH_DISABLED"
	codeInternal        = "INTERNAL"
)

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiError{Message: message, Code: code})
}

// internal logs err and answers with a generic message.
func (s *Server) internal(c echo.Context, what string, err error) error {
	s.log.Errorf("%s %s: %s: %v", c.Request().Method, c.Request().URL.Path, what, err)
	return fail(c, http.StatusInternalServerError, codeInternal, what)
}
