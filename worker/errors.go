package worker

import (
	"errors"
	"strings"

	"shorts-site/jobs"
	"shorts-site/ytdlp"
)

var ErrJobNotReady = errors.New("job has not completed")

// PipelineError is a stage failure with the code recorded on the job.
type PipelineError struct {
	Code    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }

func stageError(code, message string, err error) error {
	return &PipelineError{Code: code, Message: message, Err: err}
}

const maxDetails = 2000

// errorInfo turns a pipeline failure into what is stored on the job.
func errorInfo(err error) jobs.ErrorInfo {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return jobs.ErrorInfo{
			Message: "Processing failed",
			Code:    jobs.CodePipelineError,
			Details: truncate(err.Error()),
		}
	}
	info := jobs.ErrorInfo{Message: pe.Message, Code: pe.Code}
	switch pe.Code {
	case jobs.CodeDownloadFailed, jobs.CodeMetadataFailed, jobs.CodeInvalidReference:
		// acquisition failures are shown as they happened
		if pe.Err != nil {
			info.Message = pe.Err.Error()
		}
	}
	var de *ytdlp.DownloadError
	if errors.As(err, &de) && de.Output != "" {
		info.Details = truncate(de.Output)
	} else if pe.Err != nil {
		info.Details = truncate(pe.Err.Error())
	}
	return info
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetails {
		return s
	}
	return "..." + s[len(s)-maxDetails:]
}
