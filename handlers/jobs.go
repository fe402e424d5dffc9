package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"shorts-site/cache"
	"shorts-site/jobs"
	"shorts-site/worker"
	"shorts-site/ytdlp"
)

type optionsRequest struct {
	MaxClips         *int     `json:"maxClips"`
	ClipDurationHint *float64 `json:"clipDurationHint"`
	IncludeSubtitles *bool    `json:"includeSubtitles"`
	Quality          *string  `json:"quality"`
}

type createJobRequest struct {
	URL     string          `json:"url"`
	Options *optionsRequest `json:"options"`
}

type createJobResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

func (s *Server) options(req *optionsRequest) jobs.Options {
	opts := jobs.DefaultOptions()
	opts.Quality = s.DefaultQuality
	if req == nil {
		return opts
	}
	if req.MaxClips != nil {
		opts.MaxClips = *req.MaxClips
	}
	if req.ClipDurationHint != nil {
		opts.ClipDurationHint = *req.ClipDurationHint
	}
	if req.IncludeSubtitles != nil {
		opts.IncludeSubtitles = *req.IncludeSubtitles
	}
	if req.Quality != nil {
		opts.Quality = *req.Quality
	}
	return opts
}

func (s *Server) CreateJob(c echo.Context) error {
	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Request body must be JSON")
	}
	ref := strings.TrimSpace(req.URL)
	if _, err := ytdlp.ValidateReference(ref); err != nil {
		return fail(c, http.StatusBadRequest, jobs.CodeInvalidReference, "Not a supported video URL")
	}
	opts := s.options(req.Options)
	if err := opts.Validate(); err != nil {
		return fail(c, http.StatusBadRequest, jobs.CodeInvalidOptions, err.Error())
	}

	j, err := s.Queue.Enqueue(c.Request().Context(), ref, opts)
	if err != nil {
		return s.internal(c, "Could not create job", err)
	}
	return c.JSON(http.StatusCreated, createJobResponse{JobID: j.ID, Status: j.Status})
}

func (s *Server) ListJobs(c echo.Context) error {
	f := jobs.ListFilter{Status: jobs.Status(c.QueryParam("status"))}
	if f.Status != "" && !f.Status.Valid() {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Unknown status "+string(f.Status))
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fail(c, http.StatusBadRequest, codeBadRequest, "limit must be a positive number")
		}
		f.Limit = n
	}
	list, err := s.Jobs.ListJobs(c.Request().Context(), f)
	if err != nil {
		return s.internal(c, "Could not list jobs", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) lookup(c echo.Context) (*jobs.Job, error) {
	j, err := s.Jobs.GetJob(c.Request().Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, fail(c, http.StatusNotFound, codeNotFound, "Job not found")
	}
	if err != nil {
		return nil, s.internal(c, "Could not load job", err)
	}
	return j, nil
}

func (s *Server) GetJob(c echo.Context) error {
	j, err := s.lookup(c)
	if j == nil {
		return err
	}
	return c.JSON(http.StatusOK, j)
}

type progressResponse struct {
	JobID    string        `json:"jobId"`
	Status   jobs.Status   `json:"status"`
	Progress jobs.Progress `json:"progress"`
}

// GetProgress answers from the progress cache when it can.
func (s *Server) GetProgress(c echo.Context) error {
	id := c.Param("id")
	if s.Progress != nil {
		status, p, err := s.Progress.Get(c.Request().Context(), id)
		if err == nil {
			return c.JSON(http.StatusOK, progressResponse{JobID: id, Status: status, Progress: p})
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Debugln("progress cache:", err)
		}
	}
	j, err := s.lookup(c)
	if j == nil {
		return err
	}
	return c.JSON(http.StatusOK, progressResponse{JobID: j.ID, Status: j.Status, Progress: j.Progress})
}

func (s *Server) CancelJob(c echo.Context) error {
	ok, err := s.Worker.Cancel(c.Request().Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return fail(c, http.StatusNotFound, codeNotFound, "Job not found")
	}
	if err != nil {
		return s.internal(c, "Could not cancel job", err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": ok})
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) RegenerateTitle(c echo.Context) error {
	var req titleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, codeBadRequest, "Request body must be JSON")
	}
	j, err := s.Worker.RegenerateClipTitle(c.Request().Context(), c.Param("id"), c.Param("clipId"), req.Title)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return fail(c, http.StatusNotFound, codeNotFound, "Job not found")
	case errors.Is(err, jobs.ErrClipNotFound):
		return fail(c, http.StatusNotFound, codeNotFound, "Clip not found")
	case errors.Is(err, worker.ErrJobNotReady):
		return fail(c, http.StatusConflict, codeConflict, "Job has not completed")
	case err != nil:
		s.log.Errorln("regenerate title:", err)
		return fail(c, http.StatusInternalServerError, jobs.CodePipelineError, "Could not regenerate the clip")
	}
	return c.JSON(http.StatusOK, j)
}

func (s *Server) VideoInfo(c echo.Context) error {
	ref := strings.TrimSpace(c.QueryParam("url"))
	if _, err := ytdlp.ValidateReference(ref); err != nil {
		return fail(c, http.StatusBadRequest, jobs.CodeInvalidReference, "Not a supported video URL")
	}
	info, err := s.Info.GetVideoInfo(c.Request().Context(), ref)
	if err != nil {
		s.log.Warnln("video info:", err)
		return fail(c, http.StatusBadGateway, jobs.CodeDownloadFailed, "Could not fetch video information")
	}
	return c.JSON(http.StatusOK, info)
}
