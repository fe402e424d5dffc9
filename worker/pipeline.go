package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"shorts-site/jobs"
	"shorts-site/render"
	"shorts-site/storage"
	"shorts-site/ytdlp"
)

// progress bands
const (
	downloadEnd     = 25.0
	analyzeStart    = 25.0
	transcribeStart = 50.0
	generateStart   = 60.0
	generateBand    = 35.0
)

// runPipeline takes a job from download to stored clips.
func (w *Worker) runPipeline(ctx context.Context, j *jobs.Job, sink ProgressSink, log *logrus.Entry) (*jobs.Result, error) {
	opts := j.Options

	jobDir, err := w.Storage.EnsureJobDir(j.ID)
	if err != nil {
		return nil, stageError(jobs.CodePipelineError, "Could not prepare job directory", err)
	}

	sink.Report(jobs.StageDownloading, 0, "Downloading video")
	dl, err := w.Downloader.DownloadVideo(ctx, j.SourceRef, jobDir, func(p float64) {
		sink.Report(jobs.StageDownloading, p*downloadEnd/100, fmt.Sprintf("Downloading video: %.0f%%", p))
	})
	if err != nil {
		if errors.Is(err, ytdlp.ErrInvalidReference) {
			return nil, stageError(jobs.CodeInvalidReference, "Invalid video reference", err)
		}
		return nil, stageError(jobs.CodeDownloadFailed, "Download failed", err)
	}
	defer w.Downloader.Cleanup(dl.LocalPath)
	log.Infof("downloaded %q (%.0fs)", dl.Title, dl.Duration)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sink.Report(jobs.StageAnalyzing, analyzeStart, "Analyzing video")
	an, err := w.Analyzer.AnalyzeVideo(ctx, dl.LocalPath, opts.MaxClips, opts.ClipDurationHint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stageError(jobs.CodeMetadataFailed, "Could not analyze video", err)
	}
	scenes := an.Scenes
	if len(scenes) == 0 {
		return nil, stageError(jobs.CodeNoClipsRendered, "No usable scenes found", nil)
	}
	if an.UsedFallback {
		log.Infoln("using evenly spaced fallback scenes")
	}
	log.Infof("selected %d scenes", len(scenes))

	sourceTitle := dl.Title
	titles := w.clipTitles(ctx, sourceTitle, len(scenes), log)

	transcript := ""
	if opts.IncludeSubtitles && w.Subtitles != nil {
		sink.Report(jobs.StageTranscribing, transcribeStart, "Generating subtitles")
		path, err := w.Subtitles.GenerateSubtitles(ctx, dl.LocalPath, filepath.Join(jobDir, "subtitles"))
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warnln("subtitles failed, continuing without them:", err)
		default:
			transcript = path
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := len(scenes)
	sink.Report(jobs.StageGenerating, generateStart, fmt.Sprintf("Generating %d clips", n))
	share := generateBand / float64(n)
	clips := w.Renderer.GenerateClips(ctx, dl.LocalPath, scenes, jobDir, render.BatchOptions{
		Quality:        render.Quality(opts.Quality),
		Titles:         titles,
		TranscriptPath: transcript,
	}, func(i int, pct float64) {
		sink.Report(jobs.StageGenerating, generateStart+share*(float64(i)+pct/100),
			fmt.Sprintf("Generating clip %d of %d", i+1, n))
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if transcript != "" {
		if err := os.Remove(transcript); err != nil {
			log.Debugln("remove transcript:", err)
		}
	}
	if len(clips) == 0 {
		return nil, stageError(jobs.CodeNoClipsRendered, "No clips could be rendered", nil)
	}
	if len(clips) < n {
		log.Warnf("%d of %d clips failed to render", n-len(clips), n)
	}

	duration := dl.Duration
	if duration <= 0 {
		duration = an.Metadata.Duration
	}
	result := &jobs.Result{SourceTitle: sourceTitle, SourceDuration: duration}
	for _, c := range clips {
		info, err := w.storeClip(ctx, j.ID, c)
		if err != nil {
			log.Errorf("store clip %s: %v", c.ID, err)
			continue
		}
		result.Clips = append(result.Clips, info)
	}
	if len(result.Clips) == 0 {
		return nil, stageError(jobs.CodeNoClipsRendered, "No clips could be stored", nil)
	}
	return result, nil
}

// clipTitles asks for one title per clip. Any failure means no titles.
func (w *Worker) clipTitles(ctx context.Context, sourceTitle string, count int, log *logrus.Entry) []string {
	if w.Titles == nil {
		return nil
	}
	titles, err := w.Titles.GenerateClipTitles(ctx, sourceTitle, count)
	if err != nil {
		log.Warnln("title generation failed, clips will be untitled:", err)
		return nil
	}
	return titles
}

// storeClip saves a rendered clip and its thumbnail and describes it.
func (w *Worker) storeClip(ctx context.Context, jobID string, c render.GeneratedClip) (jobs.ClipInfo, error) {
	clipKey := storage.ClipKey(jobID, c.ID)
	if err := w.Storage.SaveFile(ctx, clipKey, c.VideoPath); err != nil {
		return jobs.ClipInfo{}, err
	}
	videoURL, err := w.Storage.GetFileURL(ctx, clipKey)
	if err != nil {
		return jobs.ClipInfo{}, err
	}

	thumbURL := ""
	if c.ThumbnailPath != "" {
		thumbKey := storage.ThumbnailKey(jobID, c.ID)
		if err := w.Storage.SaveFile(ctx, thumbKey, c.ThumbnailPath); err != nil {
			w.log.Warnf("store thumbnail for %s: %v", c.ID, err)
		} else if thumbURL, err = w.Storage.GetFileURL(ctx, thumbKey); err != nil {
			w.log.Warnf("thumbnail url for %s: %v", c.ID, err)
		}
	}

	return jobs.ClipInfo{
		ID:           c.ID,
		StartTime:    c.Scene.StartTime,
		EndTime:      c.Scene.EndTime,
		Duration:     c.Scene.Duration,
		Score:        c.Scene.Score,
		ThumbnailURL: thumbURL,
		VideoURL:     videoURL,
		Title:        strings.TrimSpace(c.Title),
	}, nil
}
