package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func newLocal(t *testing.T) *LocalFS {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewLocalFS(t.TempDir(), "http://localhost:8080/", logrus.NewEntry(l))
}

func TestKeys(t *testing.T) {
	if got := ClipKey("j1", "c1"); got != "jobs/j1/clips/c1.mp4" {
		t.Errorf("ClipKey = %q", got)
	}
	if got := ThumbnailKey("j1", "c1"); got != "jobs/j1/thumbnails/c1.jpg" {
		t.Errorf("ThumbnailKey = %q", got)
	}
	if got := SubtitleKey("j1", "c1"); got != "jobs/j1/subtitles/c1.srt" {
		t.Errorf("SubtitleKey = %q", got)
	}
}

func TestEnsureJobDir(t *testing.T) {
	fs := newLocal(t)
	dir, err := fs.EnsureJobDir("job-1")
	if err != nil {
		t.Fatalf("EnsureJobDir: %v", err)
	}
	if dir != filepath.Join(fs.Root, "jobs", "job-1") {
		t.Fatalf("dir = %q", dir)
	}
	for _, sub := range []string{"clips", "thumbnails", "subtitles"} {
		if st, err := os.Stat(filepath.Join(dir, sub)); err != nil || !st.IsDir() {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
	// idempotent
	if _, err := fs.EnsureJobDir("job-1"); err != nil {
		t.Fatalf("second EnsureJobDir: %v", err)
	}
}

func TestSaveExistsDelete(t *testing.T) {
	ctx := context.Background()
	fs := newLocal(t)

	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	key := ClipKey("j1", "c1")
	if ok, err := fs.FileExists(ctx, key); err != nil || ok {
		t.Fatalf("expected missing file, got %v %v", ok, err)
	}
	if err := fs.SaveFile(ctx, key, src); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	data, err := os.ReadFile(fs.LocalPath(key))
	if err != nil || string(data) != "video" {
		t.Fatalf("saved content = %q, %v", data, err)
	}
	if ok, err := fs.FileExists(ctx, key); err != nil || !ok {
		t.Fatalf("expected file to exist, got %v %v", ok, err)
	}

	// saving a file onto itself is a no-op
	if err := fs.SaveFile(ctx, key, fs.LocalPath(key)); err != nil {
		t.Fatalf("SaveFile in place: %v", err)
	}

	if err := fs.DeleteFiles(ctx, []string{key, ThumbnailKey("j1", "c1")}); err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}
	if ok, _ := fs.FileExists(ctx, key); ok {
		t.Fatalf("expected file removed")
	}
}

func TestGetFileURL(t *testing.T) {
	fs := newLocal(t)
	got, err := fs.GetFileURL(context.Background(), ClipKey("j1", "c1"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "http://localhost:8080/files/jobs/j1/clips/c1.mp4"; got != want {
		t.Fatalf("GetFileURL = %q, want %q", got, want)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	fs := newLocal(t)
	for _, key := range []string{"", "../etc/passwd", "jobs/../../x"} {
		if _, err := fs.FileExists(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("FileExists(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}
