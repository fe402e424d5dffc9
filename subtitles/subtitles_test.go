package subtitles

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asticode/go-astisub"
	"github.com/sirupsen/logrus"
)

const transcript = `1
00:00:01,000 --> 00:00:04,500
Hello there

2
00:00:20,000 --> 00:00:23,250
This is the part
we keep

3
00:00:29,000 --> 00:00:32,000
Crossing the end

4
00:01:10,000 --> 00:01:12,000
Long gone
`

func TestSlice(t *testing.T) {
	subs, err := astisub.ReadFromSRT(strings.NewReader(transcript))
	if err != nil {
		t.Fatalf("ReadFromSRT: %v", err)
	}
	if len(subs.Items) != 4 {
		t.Fatalf("expected 4 cues, got %d", len(subs.Items))
	}

	sliced := Slice(subs, 19*time.Second, 30*time.Second)
	if len(sliced.Items) != 2 {
		t.Fatalf("expected 2 cues in window, got %d", len(sliced.Items))
	}
	first := sliced.Items[0]
	if first.StartAt != time.Second || first.EndAt != 4250*time.Millisecond || len(first.Lines) != 2 {
		t.Fatalf("unexpected shift %v-%v lines=%d", first.StartAt, first.EndAt, len(first.Lines))
	}
	if sliced.Items[1].EndAt != 11*time.Second {
		t.Fatalf("expected last cue clamped to window end, got %v", sliced.Items[1].EndAt)
	}
	if subs.Items[1].StartAt != 20*time.Second {
		t.Fatalf("source cue was modified: %v", subs.Items[1].StartAt)
	}
}

func TestSliceFileWritesShiftedCues(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.srt")
	dst := filepath.Join(dir, "clip.srt")
	if err := os.WriteFile(src, []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := SliceFile(src, 19, 30, dst)
	if err != nil {
		t.Fatalf("SliceFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cues, got %d", n)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"00:00:01,000 --> 00:00:04,250", "00:00:10,000 --> 00:00:11,000", "we keep"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("output missing %q:\n%s", want, b)
		}
	}
	written, err := astisub.OpenFile(dst)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(written.Items) != 2 || written.Items[0].Lines[0].String() != "This is the part" {
		t.Fatalf("unexpected cues in output:\n%s", b)
	}

	n, err = SliceFile(src, 200, 230, filepath.Join(dir, "empty.srt"))
	if err != nil || n != 0 {
		t.Fatalf("expected empty slice, got n=%d err=%v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "empty.srt")); !os.IsNotExist(err) {
		t.Fatalf("no file should be written for an empty slice")
	}
}

func TestWhisperDisabled(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	w := NewWhisper("", "base", logrus.NewEntry(l))
	path, err := w.GenerateSubtitles(context.Background(), "source.mp4", t.TempDir())
	if err != nil || path != "" {
		t.Fatalf("expected disabled generator to return nothing, got %q %v", path, err)
	}
}

func TestWhisperWritesTranscript(t *testing.T) {
	fakeBin := t.TempDir()
	script := `#!/usr/bin/env bash
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output_dir" ]; then out="$a"; fi
  prev="$a"
done
printf '1\n00:00:00,000 --> 00:00:02,000\nhi\n' > "$out/source.srt"
`
	bin := filepath.Join(fakeBin, "whisper")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	l := logrus.New()
	l.SetOutput(io.Discard)

	out := t.TempDir()
	path, err := NewWhisper(bin, "base", logrus.NewEntry(l)).GenerateSubtitles(context.Background(), "/media/source.mp4", out)
	if err != nil {
		t.Fatalf("GenerateSubtitles: %v", err)
	}
	if path != filepath.Join(out, "source.srt") {
		t.Fatalf("unexpected path %q", path)
	}
}
