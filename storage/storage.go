package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrInvalidKey = errors.New("invalid storage key")

// Storage holds job artifacts. Keys are slash separated and relative to the
// storage root, e.g. jobs/<jobID>/clips/<clipID>.mp4. Every backend keeps a
// local working copy under LocalPath(key) that ffmpeg reads and writes.
type Storage interface {
	// EnsureJobDir creates the local job directory with its clips,
	// thumbnails and subtitles subdirectories and returns its path.
	EnsureJobDir(jobID string) (string, error)
	// SaveFile makes the file at localPath available under key.
	SaveFile(ctx context.Context, key, localPath string) error
	DeleteFile(ctx context.Context, key string) error
	DeleteFiles(ctx context.Context, keys []string) error
	FileExists(ctx context.Context, key string) (bool, error)
	GetFileURL(ctx context.Context, key string) (string, error)
	LocalPath(key string) string
}

func JobDirKey(jobID string) string {
	return path.Join("jobs", jobID)
}

func ClipKey(jobID, clipID string) string {
	return path.Join(JobDirKey(jobID), "clips", clipID+".mp4")
}

func ThumbnailKey(jobID, clipID string) string {
	return path.Join(JobDirKey(jobID), "thumbnails", clipID+".jpg")
}

func SubtitleKey(jobID, clipID string) string {
	return path.Join(JobDirKey(jobID), "subtitles", clipID+".srt")
}

var jobSubdirs = []string{"clips", "thumbnails", "subtitles"}

func cleanKey(key string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(key, "/"))
	if clean == "." || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// LocalFS stores files under Root and serves them below BaseURL.
type LocalFS struct {
	Root    string
	BaseURL string
	log     *logrus.Entry
}

func NewLocalFS(root, baseURL string, log *logrus.Entry) *LocalFS {
	return &LocalFS{Root: root, BaseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (l *LocalFS) LocalPath(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(path.Clean("/"+key)))
}

func (l *LocalFS) EnsureJobDir(jobID string) (string, error) {
	if _, err := cleanKey(JobDirKey(jobID)); err != nil {
		return "", err
	}
	dir := l.LocalPath(JobDirKey(jobID))
	for _, sub := range jobSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create job dir: %w", err)
		}
	}
	return dir, nil
}

// SaveFile copies localPath to the key's location unless it is already there.
func (l *LocalFS) SaveFile(ctx context.Context, key, localPath string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	dst := l.LocalPath(clean)
	if sameFile(localPath, dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (l *LocalFS) DeleteFile(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(l.LocalPath(clean)); err != nil {
		return err
	}
	l.log.Debugln("removed", clean)
	return nil
}

// DeleteFiles removes every key, returning the joined errors.
func (l *LocalFS) DeleteFiles(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := l.DeleteFile(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *LocalFS) FileExists(ctx context.Context, key string) (bool, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(l.LocalPath(clean))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (l *LocalFS) GetFileURL(ctx context.Context, key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	u, err := url.JoinPath(l.BaseURL+"/files", strings.Split(clean, "/")...)
	if err != nil {
		return "", err
	}
	return u, nil
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}
