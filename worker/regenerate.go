package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"shorts-site/events"
	"shorts-site/jobs"
	"shorts-site/render"
	"shorts-site/storage"
)

// RegenerateClipTitle re-renders one clip of a completed job with a new title
// and records it. The clip keeps its id; an empty title removes the overlay.
func (w *Worker) RegenerateClipTitle(ctx context.Context, jobID, clipID, title string) (*jobs.Job, error) {
	j, err := w.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != jobs.StatusCompleted || j.Result == nil {
		return nil, ErrJobNotReady
	}
	clip, ok := j.Result.Clip(clipID)
	if !ok {
		return nil, jobs.ErrClipNotFound
	}
	title = strings.TrimSpace(title)

	w.regenMu.Lock()
	defer w.regenMu.Unlock()

	clipKey := storage.ClipKey(jobID, clipID)
	thumbKey := storage.ThumbnailKey(jobID, clipID)
	clipPath := w.Storage.LocalPath(clipKey)
	thumbPath := w.Storage.LocalPath(thumbKey)

	w.log.Infof("regenerating title of clip %s in job %s", clipID, jobID)
	err = w.Renderer.AddTitleToClip(ctx, clipPath, thumbPath, title, render.TitleOptions{
		Quality:  render.Quality(j.Options.Quality),
		Duration: clip.Duration,
	}, nil)
	if err != nil {
		w.log.Errorf("regenerate clip %s: %v", clipID, err)
		return nil, fmt.Errorf("regenerate clip title: %w", err)
	}

	if err := w.Storage.SaveFile(ctx, clipKey, clipPath); err != nil {
		return nil, fmt.Errorf("store clip: %w", err)
	}
	if _, err := os.Stat(thumbPath); err == nil {
		if err := w.Storage.SaveFile(ctx, thumbKey, thumbPath); err != nil {
			w.log.Warnf("store thumbnail for %s: %v", clipID, err)
		}
	}

	updated, err := w.Store.UpdateClipTitle(ctx, jobID, clipID, title)
	if err != nil {
		return nil, err
	}
	e := events.FromJob(events.TypeClipTitle, updated)
	e.ClipID = clipID
	if err := w.Events.Publish(ctx, e); err != nil {
		w.log.Warnln("publish clip title event:", err)
	}
	return updated, nil
}
