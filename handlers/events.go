package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"shorts-site/events"
	"shorts-site/jobs"
)

var heartbeatInterval = 15 * time.Second

// JobEvents streams a job's events as server-sent events. The current state
// is sent first; the stream ends after a terminal event.
func (s *Server) JobEvents(c echo.Context) error {
	id := c.Param("id")
	sub := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(sub)

	j, err := s.lookup(c)
	if j == nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	write := func(e events.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	first := events.FromJob(eventType(j), j)
	if err := write(first); err != nil || first.Type.Terminal() {
		return err
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case e := <-sub.Ch:
			if err := write(e); err != nil {
				return nil
			}
			if e.Type.Terminal() {
				return nil
			}
		}
	}
}

// eventType names the event that describes the job as it is now.
func eventType(j *jobs.Job) events.Type {
	switch j.Status {
	case jobs.StatusCompleted:
		return events.TypeCompleted
	case jobs.StatusFailed:
		return events.TypeFailed
	case jobs.StatusCancelled:
		return events.TypeCancelled
	}
	return events.TypeStatus
}
