package analysis

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"shorts-site/ffmpeg"
)

type MetadataReader interface {
	GetMetadata(ctx context.Context, path string) (ffmpeg.Metadata, error)
}

type SceneDetector interface {
	DetectSceneChanges(ctx context.Context, path string, threshold float64) ([]float64, error)
}

// Analysis is the outcome of AnalyzeVideo.
type Analysis struct {
	Metadata     ffmpeg.Metadata
	Scenes       []Scene
	UsedFallback bool
}

type Engine struct {
	cfg      Config
	meta     MetadataReader
	detector SceneDetector
	log      *logrus.Entry
}

func NewEngine(cfg Config, meta MetadataReader, detector SceneDetector, log *logrus.Entry) *Engine {
	return &Engine{cfg: cfg, meta: meta, detector: detector, log: log}
}

func (e *Engine) Config() Config { return e.cfg }

// DetectScenes runs the scene-change detector and converts the change points
// into candidate scenes.
func (e *Engine) DetectScenes(ctx context.Context, sourcePath string, threshold, total float64) ([]Scene, error) {
	timestamps, err := e.detector.DetectSceneChanges(ctx, sourcePath, threshold)
	if err != nil {
		return nil, err
	}
	e.log.Debugf("detected %d scene changes in %s", len(timestamps), sourcePath)
	return e.cfg.ScenesFromTimestamps(timestamps, total), nil
}

// AnalyzeVideo reads the source metadata, detects and scores candidate scenes, tops
// up with fallback windows when detection is short, and returns at most
// maxClips non-overlapping scenes in start order. idealDuration overrides the
// configured ideal clip length when positive.
//
// Only a metadata failure is returned as an error; detector failures degrade to
// fallback scenes.
func (e *Engine) AnalyzeVideo(ctx context.Context, sourcePath string, maxClips int, idealDuration float64) (Analysis, error) {
	md, err := e.meta.GetMetadata(ctx, sourcePath)
	if err != nil {
		return Analysis{}, fmt.Errorf("read source metadata: %w", err)
	}
	cfg := e.cfg.WithIdealDuration(idealDuration)

	detected, err := e.DetectScenes(ctx, sourcePath, cfg.SceneThreshold, md.Duration)
	if err != nil {
		if ctx.Err() != nil {
			return Analysis{}, ctx.Err()
		}
		e.log.Warnf("scene detection failed, using fallback scenes: %v", err)
		detected = nil
	}

	scored := cfg.ScoreScenes(detected, md.Duration)
	selected := cfg.SelectBestScenes(scored, maxClips)

	usedFallback := false
	if len(selected) < maxClips {
		fallback := cfg.ScoreScenes(cfg.CreateFallbackScenes(md.Duration, maxClips), md.Duration)
		selected = cfg.SelectBestScenes(append(scored, fallback...), maxClips)
		for _, s := range selected {
			if s.Fallback {
				usedFallback = true
				break
			}
		}
	}
	e.log.Infof("selected %d of %d candidate scenes (fallback=%v)", len(selected), len(scored), usedFallback)

	return Analysis{
		Metadata:     md,
		Scenes:       selected,
		UsedFallback: usedFallback,
	}, nil
}
