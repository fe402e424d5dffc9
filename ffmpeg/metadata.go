package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xfrr/goffmpeg/media"
	"github.com/xfrr/goffmpeg/transcoder"
)

type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
	Bitrate  int64   `json:"bitrate"`
}

// GetMetadata probes path with ffprobe (through goffmpeg) and summarizes the
// first video stream.
func (r *Runner) GetMetadata(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	r.log.Debugln("probing", path)

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return Metadata{}, fmt.Errorf("read metadata of %s: %w", path, err)
	}
	return metadataFrom(trans.MediaFile().Metadata())
}

func metadataFrom(m media.Metadata) (Metadata, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(m.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return Metadata{}, fmt.Errorf("ffprobe reported no usable duration (%q)", m.Format.Duration)
	}
	md := Metadata{Duration: duration}
	if br, err := strconv.ParseInt(m.Format.BitRate, 10, 64); err == nil {
		md.Bitrate = br
	}

	for _, s := range m.Streams {
		if s.CodecType != "video" {
			continue
		}
		md.Width = s.Width
		md.Height = s.Height
		md.Codec = s.CodecName
		md.FPS = parseFrameRate(s.AvgFrameRate)
		if md.Bitrate == 0 {
			if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
				md.Bitrate = br
			}
		}
		break
	}
	return md, nil
}

// parses ffprobe rationals like "30000/1001"
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
