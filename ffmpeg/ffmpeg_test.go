package ffmpeg

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/xfrr/goffmpeg/media"
)

func testRunner() *Runner {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(logrus.NewEntry(l))
}

func TestParseSceneTimestamps(t *testing.T) {
	out := []byte(`Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'source.mp4':
[Parsed_showinfo_1 @ 0x5581] n:   0 pts:  58000 pts_time:4.52    duration:512 fmt:yuv420p
[Parsed_showinfo_1 @ 0x5581] n:   1 pts: 523000 pts_time:40.8   duration:512 fmt:yuv420p
[Parsed_showinfo_1 @ 0x5581] n:   2 pts: 290000 pts_time:22     duration:512 fmt:yuv420p
frame=  3 fps=0.0 q=-0.0 Lsize=N/A time=00:01:59.98 bitrate=N/A speed= 412x
`)
	got := ParseSceneTimestamps(out)
	want := []float64{4.52, 22, 40.8}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":       30,
		"25":         25,
		"0/0":        0,
		"":           0,
		"24000/1000": 24,
	}
	for in, want := range cases {
		if got := parseFrameRate(in); got != want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMetadataFrom(t *testing.T) {
	var m media.Metadata
	m.Format.Duration = "120.500000"
	m.Format.BitRate = "2500000"
	m.Streams = []media.Streams{
		{CodecType: "audio", CodecName: "aac"},
		{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "30/1"},
	}

	md, err := metadataFrom(m)
	if err != nil {
		t.Fatalf("metadataFrom: %v", err)
	}
	if md.Duration != 120.5 || md.Width != 1920 || md.Height != 1080 || md.FPS != 30 || md.Codec != "h264" || md.Bitrate != 2500000 {
		t.Fatalf("unexpected metadata %+v", md)
	}

	m.Format.Duration = "N/A"
	if _, err := metadataFrom(m); err == nil {
		t.Fatalf("expected error for missing duration")
	}
}

func TestDetectSceneChangesUsesFfmpegOutput(t *testing.T) {
	fakeBin := t.TempDir()
	script := `#!/usr/bin/env bash
echo "[Parsed_showinfo_1 @ 0x1] n:0 pts:1 pts_time:12.5 duration:1" >&2
echo "[Parsed_showinfo_1 @ 0x1] n:1 pts:2 pts_time:48.25 duration:1" >&2
exit 0
`
	if err := os.WriteFile(filepath.Join(fakeBin, "ffmpeg"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))

	times, err := testRunner().DetectSceneChanges(context.Background(), "source.mp4", 0.3)
	if err != nil {
		t.Fatalf("DetectSceneChanges: %v", err)
	}
	if len(times) != 2 || times[0] != 12.5 || times[1] != 48.25 {
		t.Fatalf("unexpected timestamps %v", times)
	}
}

func TestDetectSceneChangesFailure(t *testing.T) {
	fakeBin := t.TempDir()
	script := "#!/usr/bin/env bash\necho 'moov atom not found' >&2\nexit 1\n"
	if err := os.WriteFile(filepath.Join(fakeBin, "ffmpeg"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))

	if _, err := testRunner().DetectSceneChanges(context.Background(), "broken.mp4", 0.3); err == nil {
		t.Fatalf("expected error from failing ffmpeg")
	}
}
