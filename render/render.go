package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shorts-site/analysis"
	"shorts-site/subtitles"
)

const maxTitleLines = 3

type Config struct {
	Width        int
	Height       int
	FontFile     string
	FontSize     int
	BorderWidth  int
	TopOffset    int
	LineSpacing  int
	MaxLineChars int
}

func DefaultConfig() Config {
	return Config{
		Width:        1080,
		Height:       1920,
		FontFile:     "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
		FontSize:     72,
		BorderWidth:  6,
		TopOffset:    180,
		LineSpacing:  90,
		MaxLineChars: 18,
	}
}

// ClipOptions controls a single clip render.
type ClipOptions struct {
	Quality Quality
	Title   string
	// TranscriptPath is a full-source SRT; the part covering the clip is
	// burned in.
	TranscriptPath string
}

// BatchOptions controls GenerateClips. Titles[i] applies to scenes[i].
type BatchOptions struct {
	Quality        Quality
	Titles         []string
	TranscriptPath string
}

// TitleOptions controls AddTitleToClip. Duration is the clip length used to
// turn encoder timemarks into percentages.
type TitleOptions struct {
	Quality  Quality
	Duration float64
}

type GeneratedClip struct {
	ID            string
	Index         int
	Scene         analysis.Scene
	Title         string
	VideoPath     string
	MasterPath    string
	ThumbnailPath string
	SubtitlePath  string
}

type Renderer struct {
	cfg Config
	tr  Transcoder
	log *logrus.Entry
}

func New(cfg Config, tr Transcoder, log *logrus.Entry) *Renderer {
	return &Renderer{cfg: cfg, tr: tr, log: log}
}

// MasterPath is the untitled rendition kept next to a clip so that titles can
// be replaced without stacking overlays.
func MasterPath(clipPath string) string {
	ext := filepath.Ext(clipPath)
	return strings.TrimSuffix(clipPath, ext) + ".master" + ext
}

// GenerateClips renders scenes in order. A failed clip is logged and left out
// of the result; it never stops the batch. onProgress receives the scene
// index and that clip's completion percentage.
func (r *Renderer) GenerateClips(ctx context.Context, sourcePath string, scenes []analysis.Scene, outputDir string, opts BatchOptions, onProgress func(index int, percent float64)) []GeneratedClip {
	var clips []GeneratedClip
	for i, scene := range scenes {
		if ctx.Err() != nil {
			r.log.Warnf("render cancelled before clip %d of %d", i+1, len(scenes))
			break
		}
		title := ""
		if i < len(opts.Titles) {
			title = opts.Titles[i]
		}
		clipOpts := ClipOptions{
			Quality:        opts.Quality,
			Title:          title,
			TranscriptPath: opts.TranscriptPath,
		}
		clip, err := r.GenerateClip(ctx, sourcePath, scene, i, outputDir, clipOpts, func(percent float64) {
			if onProgress != nil {
				onProgress(i, percent)
			}
		})
		if err != nil {
			r.log.Errorf("clip %d (%.2fs-%.2fs) failed: %v", i+1, scene.StartTime, scene.EndTime, err)
			continue
		}
		clips = append(clips, clip)
	}
	return clips
}

// GenerateClip renders one scene into outputDir/clips/<id>.mp4 with a
// thumbnail in outputDir/thumbnails.
func (r *Renderer) GenerateClip(ctx context.Context, sourcePath string, scene analysis.Scene, index int, outputDir string, opts ClipOptions, onProgress func(percent float64)) (GeneratedClip, error) {
	id := uuid.Must(uuid.NewV7()).String()
	clip := GeneratedClip{
		ID:            id,
		Index:         index,
		Scene:         scene,
		Title:         strings.TrimSpace(opts.Title),
		VideoPath:     filepath.Join(outputDir, "clips", id+".mp4"),
		ThumbnailPath: filepath.Join(outputDir, "thumbnails", id+".jpg"),
	}
	clip.MasterPath = MasterPath(clip.VideoPath)
	profile := ProfileFor(opts.Quality)

	if opts.TranscriptPath != "" {
		subPath := filepath.Join(outputDir, "subtitles", id+".srt")
		n, err := subtitles.SliceFile(opts.TranscriptPath, scene.StartTime, scene.EndTime, subPath)
		switch {
		case err != nil:
			r.log.Warnf("clip %s: subtitles skipped: %v", id, err)
		case n > 0:
			clip.SubtitlePath = subPath
		}
	}

	// the master pass covers the whole band unless a title pass follows
	span := 100.0
	if clip.Title != "" {
		span = 80
	}
	report := func(offset, width float64) func(float64) {
		return func(sec float64) {
			if onProgress != nil && scene.Duration > 0 {
				onProgress(offset + width*math.Min(sec/scene.Duration, 1))
			}
		}
	}

	err := r.tr.Transcode(ctx, TranscodeRequest{
		Input:       sourcePath,
		Output:      clip.MasterPath,
		Seek:        scene.StartTime,
		Duration:    scene.Duration,
		VideoFilter: r.baseFilter(clip.SubtitlePath),
		Profile:     profile,
	}, report(0, span))
	if err != nil {
		r.removeClipFiles(clip)
		return GeneratedClip{}, err
	}

	if clip.Title != "" {
		err = r.renderTitled(ctx, clip.MasterPath, clip.VideoPath, clip.Title, profile, report(span, 100-span))
	} else {
		err = copyFile(clip.MasterPath, clip.VideoPath)
	}
	if err != nil {
		r.removeClipFiles(clip)
		return GeneratedClip{}, err
	}

	if err := r.tr.Thumbnail(ctx, clip.VideoPath, clip.ThumbnailPath); err != nil {
		r.log.Warnf("clip %s: thumbnail failed: %v", id, err)
		clip.ThumbnailPath = ""
	}
	if onProgress != nil {
		onProgress(100)
	}
	return clip, nil
}

// AddTitleToClip replaces the title burned into an already rendered clip. The
// new rendition is made from the clip's untitled master when one exists, so
// repeated calls never stack overlays; an empty title removes it. The clip is
// replaced atomically and the thumbnail is refreshed when thumbPath is set.
func (r *Renderer) AddTitleToClip(ctx context.Context, clipPath, thumbPath, title string, opts TitleOptions, onProgress func(percent float64)) error {
	input := MasterPath(clipPath)
	if _, err := os.Stat(input); err != nil {
		r.log.Warnf("no master for %s, rendering over the existing clip", clipPath)
		input = clipPath
	}

	title = strings.TrimSpace(title)
	var err error
	if title == "" && input != clipPath {
		err = replaceWithCopy(input, clipPath)
	} else {
		err = r.renderTitled(ctx, input, clipPath, title, ProfileFor(opts.Quality), func(sec float64) {
			if onProgress != nil && opts.Duration > 0 {
				onProgress(100 * math.Min(sec/opts.Duration, 1))
			}
		})
	}
	if err != nil {
		return err
	}

	if thumbPath != "" {
		if err := r.tr.Thumbnail(ctx, clipPath, thumbPath); err != nil {
			r.log.Warnf("thumbnail refresh for %s failed: %v", clipPath, err)
		}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

// GenerateThumbnail writes a JPEG of the first frame of clipPath.
func (r *Renderer) GenerateThumbnail(ctx context.Context, clipPath, thumbPath string) error {
	return r.tr.Thumbnail(ctx, clipPath, thumbPath)
}

// renderTitled encodes input with the title overlay into a temporary file next
// to dst and renames it over dst.
func (r *Renderer) renderTitled(ctx context.Context, input, dst, title string, profile Profile, onProgress func(float64)) error {
	tmp := tempPath(dst)
	req := TranscodeRequest{
		Input:       input,
		Output:      tmp,
		VideoFilter: strings.Join(r.titleFilters(title), ","),
		Profile:     profile,
	}
	if req.VideoFilter == "" {
		req.VideoFilter = "null"
	}
	if err := r.tr.Transcode(ctx, req, onProgress); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

func (r *Renderer) removeClipFiles(clip GeneratedClip) {
	for _, p := range []string{clip.MasterPath, clip.VideoPath, clip.SubtitlePath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warnf("remove %s: %v", p, err)
		}
	}
}

func tempPath(dst string) string {
	ext := filepath.Ext(dst)
	return filepath.Join(filepath.Dir(dst), "."+strings.TrimSuffix(filepath.Base(dst), ext)+"-"+uuid.NewString()+".tmp"+ext)
}

// replaceWithCopy copies src over dst through a temporary file.
func replaceWithCopy(src, dst string) error {
	tmp := tempPath(dst)
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
