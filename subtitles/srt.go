package subtitles

import (
	"fmt"
	"os"
	"time"

	"github.com/asticode/go-astisub"
)

// Slice keeps the items that overlap [start, end], clamps them to the window
// and shifts them so that start becomes zero.
func Slice(subs *astisub.Subtitles, start, end time.Duration) *astisub.Subtitles {
	out := astisub.NewSubtitles()
	for _, item := range subs.Items {
		if item.EndAt <= start || item.StartAt >= end {
			continue
		}
		shifted := *item
		shifted.StartAt = max(item.StartAt, start) - start
		shifted.EndAt = min(item.EndAt, end) - start
		out.Items = append(out.Items, &shifted)
	}
	return out
}

// SliceFile writes the part of the transcript at src that falls inside
// [start, end] (seconds) to dst and returns the number of cues written. No
// file is written when nothing overlaps.
func SliceFile(src string, start, end float64, dst string) (int, error) {
	subs, err := astisub.OpenFile(src)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", src, err)
	}
	sliced := Slice(subs, seconds(start), seconds(end))
	if len(sliced.Items) == 0 {
		return 0, nil
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	if err := sliced.WriteToSRT(out); err != nil {
		out.Close()
		return 0, err
	}
	return len(sliced.Items), out.Close()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
