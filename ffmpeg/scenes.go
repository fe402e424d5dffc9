package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var ptsTimeRe = regexp.MustCompile(`pts_time:\s*([0-9]+(?:\.[0-9]+)?)`)

// DetectSceneChanges runs ffmpeg's frame-difference scene filter over path and
// returns the timestamps (seconds, ascending) where the scene score exceeded
// threshold.
func (r *Runner) DetectSceneChanges(ctx context.Context, path string, threshold float64) ([]float64, error) {
	filter := fmt.Sprintf("select='gt(scene,%s)',showinfo", strconv.FormatFloat(threshold, 'f', -1, 64))
	_, stderr, err := r.Ffmpeg(ctx,
		"-hide_banner",
		"-nostats",
		"-i", path,
		"-vf", filter,
		"-an",
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("scene detection: %w", err)
	}
	return ParseSceneTimestamps(stderr), nil
}

// ParseSceneTimestamps extracts pts_time values from showinfo output.
func ParseSceneTimestamps(output []byte) []float64 {
	var times []float64
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := ptsTimeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	sort.Float64s(times)
	return times
}
