package ytdlp

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testClient() *Client {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(logrus.NewEntry(l))
}

func installFakeYtdlp(t *testing.T, script string) {
	t.Helper()
	fakeBin := t.TempDir()
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
}

const fakeYtdlp = `#!/usr/bin/env bash
set -euo pipefail
for a in "$@"; do
  if [ "$a" = "--dump-single-json" ]; then
    echo '{"id":"abc123","title":"Test Video","duration":120,"thumbnail":"https://i.ytimg.com/vi/abc123/hq.jpg"}'
    exit 0
  fi
done
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
echo "[download] Destination: source.mp4"
echo "[download]  12.5% of 10.00MiB at 1.00MiB/s ETA 00:09"
echo "[download]  64.0% of 10.00MiB at 1.00MiB/s ETA 00:03"
echo "[download] 100.0% of 10.00MiB in 00:10"
echo "fake media" > "$(dirname "$out")/source.mp4"
`

func TestValidateReference(t *testing.T) {
	cases := []struct {
		ref    string
		id     string
		wantOK bool
	}{
		{"https://www.youtube.com/watch?v=abc123", "abc123", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/abc_DEF-1", "abc_DEF-1", true},
		{"http://m.youtube.com/watch?v=xyz", "xyz", true},
		{"", "", false},
		{"not a url", "", false},
		{"ftp://youtube.com/watch?v=abc", "", false},
		{"https://vimeo.com/12345", "", false},
		{"https://www.youtube.com/watch", "", false},
		{"https://www.youtube.com/watch?v=bad id", "", false},
		{"https://www.youtube.com/playlist?list=PL123", "", false},
	}
	for _, tc := range cases {
		id, err := ValidateReference(tc.ref)
		if tc.wantOK {
			if err != nil {
				t.Errorf("ValidateReference(%q): unexpected error %v", tc.ref, err)
			} else if id != tc.id {
				t.Errorf("ValidateReference(%q) = %q, want %q", tc.ref, id, tc.id)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidReference) {
			t.Errorf("ValidateReference(%q): expected ErrInvalidReference, got %v", tc.ref, err)
		}
	}
}

func TestDownloadVideoReportsProgress(t *testing.T) {
	installFakeYtdlp(t, fakeYtdlp)
	dir := t.TempDir()

	var seen []float64
	dl, err := testClient().DownloadVideo(context.Background(), "https://www.youtube.com/watch?v=abc123", dir, func(p float64) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if dl.ID != "abc123" || dl.Title != "Test Video" || dl.Duration != 120 {
		t.Fatalf("unexpected download %+v", dl)
	}
	if dl.LocalPath != filepath.Join(dir, "source.mp4") {
		t.Fatalf("unexpected local path %q", dl.LocalPath)
	}
	if len(seen) != 3 || seen[0] != 12.5 || seen[2] != 100 {
		t.Fatalf("unexpected progress %v", seen)
	}
}

func TestDownloadVideoRejectsBadReferenceWithoutRunning(t *testing.T) {
	installFakeYtdlp(t, "#!/usr/bin/env bash\necho should-not-run >&2\nexit 3\n")

	_, err := testClient().DownloadVideo(context.Background(), "https://example.com/video", t.TempDir(), nil)
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		t.Fatalf("invalid reference must not be reported as a download failure")
	}
}

func TestDownloadVideoFailure(t *testing.T) {
	installFakeYtdlp(t, "#!/usr/bin/env bash\necho 'ERROR: Video unavailable' >&2\nexit 1\n")

	_, err := testClient().DownloadVideo(context.Background(), "https://youtu.be/gone", t.TempDir(), nil)
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if dlErr.Output != "ERROR: Video unavailable" {
		t.Fatalf("unexpected captured output %q", dlErr.Output)
	}
}

func TestCleanupNeverFails(t *testing.T) {
	c := testClient()
	dir := t.TempDir()
	path := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c.Cleanup(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	c.Cleanup(path)
	c.Cleanup("")
}
