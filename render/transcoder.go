package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xfrr/goffmpeg/transcoder"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) Valid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// Profile is the encoder parameter set for a Quality.
type Profile struct {
	VideoCodec   string
	Preset       string
	VideoBitrate string
	AudioCodec   string
	AudioBitrate string
}

func ProfileFor(q Quality) Profile {
	p := Profile{VideoCodec: "libx264", AudioCodec: "aac"}
	switch q {
	case QualityLow:
		p.Preset, p.VideoBitrate, p.AudioBitrate = "veryfast", "1500k", "96k"
	case QualityHigh:
		p.Preset, p.VideoBitrate, p.AudioBitrate = "slow", "6000k", "192k"
	default:
		p.Preset, p.VideoBitrate, p.AudioBitrate = "fast", "3000k", "128k"
	}
	return p
}

type TranscodeRequest struct {
	Input       string
	Output      string
	Seek        float64 // seconds, 0 = from the start
	Duration    float64 // seconds, 0 = until the end
	VideoFilter string
	Profile     Profile
}

// Transcoder runs ffmpeg jobs. onProgress receives the encoded position in
// seconds.
type Transcoder interface {
	Transcode(ctx context.Context, req TranscodeRequest, onProgress func(seconds float64)) error
	Thumbnail(ctx context.Context, input, output string) error
}

// TranscodeError carries the tool output of a failed ffmpeg run.
type TranscodeError struct {
	Op     string
	Input  string
	Output string
	Detail string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Input, e.Output, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// GoffmpegTranscoder drives ffmpeg through github.com/xfrr/goffmpeg.
type GoffmpegTranscoder struct {
	log *logrus.Entry
}

func NewGoffmpegTranscoder(log *logrus.Entry) *GoffmpegTranscoder {
	return &GoffmpegTranscoder{log: log}
}

func (g *GoffmpegTranscoder) Transcode(ctx context.Context, req TranscodeRequest, onProgress func(seconds float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(req.Input, req.Output); err != nil {
		return &TranscodeError{Op: "initialize", Input: req.Input, Output: req.Output, Err: err}
	}

	mf := trans.MediaFile()
	if req.Seek > 0 {
		mf.SetSeekTime(formatTimestamp(req.Seek))
	}
	if req.Duration > 0 {
		mf.SetDuration(formatTimestamp(req.Duration))
	}
	if req.VideoFilter != "" {
		mf.SetVideoFilter(req.VideoFilter)
	}
	mf.SetVideoCodec(req.Profile.VideoCodec)
	mf.SetPreset(req.Profile.Preset)
	mf.SetVideoBitRate(req.Profile.VideoBitrate)
	mf.SetAudioCodec(req.Profile.AudioCodec)
	mf.SetAudioBitRate(req.Profile.AudioBitrate)
	mf.SetOutputFormat("mp4")

	g.log.Infof("transcode %s -> %s (seek=%.2f duration=%.2f)", req.Input, req.Output, req.Seek, req.Duration)
	g.log.Debugf("filter: %s", req.VideoFilter)

	done := trans.Run(true)
	for msg := range trans.Output() {
		if onProgress == nil {
			continue
		}
		if sec, ok := parseTimemark(msg.CurrentTime); ok {
			onProgress(sec)
		}
	}
	if err := <-done; err != nil {
		g.log.Errorf("transcode %s failed: %v", req.Output, err)
		return &TranscodeError{Op: "transcode", Input: req.Input, Output: req.Output, Detail: err.Error(), Err: err}
	}
	return nil
}

func (g *GoffmpegTranscoder) Thumbnail(ctx context.Context, input, output string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(input, output); err != nil {
		return &TranscodeError{Op: "initialize", Input: input, Output: output, Err: err}
	}
	mf := trans.MediaFile()
	mf.SetSeekTime("00:00:00.000")
	mf.SetVframes(1)
	mf.SetVideoCodec("mjpeg")
	mf.SetOutputFormat("image2")
	mf.SetSkipAudio(true)

	if err := <-trans.Run(false); err != nil {
		g.log.Errorf("thumbnail %s failed: %v", output, err)
		return &TranscodeError{Op: "thumbnail", Input: input, Output: output, Detail: err.Error(), Err: err}
	}
	return nil
}

// parses ffmpeg's HH:MM:SS.xx timemark
func parseTimemark(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}

func formatTimestamp(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, ms/1000, ms%1000)
}
