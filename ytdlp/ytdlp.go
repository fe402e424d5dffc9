package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrInvalidReference is returned before yt-dlp is ever invoked when a source
// reference is not a supported video URL.
var ErrInvalidReference = errors.New("invalid video reference")

// DownloadError wraps a yt-dlp failure together with the tail of its output.
type DownloadError struct {
	Ref    string
	Output string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Ref, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

type VideoInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

type Download struct {
	ID        string
	Title     string
	Duration  float64
	LocalPath string
}

type Client struct {
	log *logrus.Entry
	bin string
}

func New(log *logrus.Entry) *Client {
	return &Client{log: log, bin: "yt-dlp"}
}

var (
	videoIDRe         = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	downloadPercentRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
)

// ValidateReference checks that ref is a YouTube video URL and returns its
// video id.
func ValidateReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidReference)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}

	var id string
	switch strings.ToLower(u.Hostname()) {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case len(parts) == 1 && parts[0] == "watch":
			id = u.Query().Get("v")
		case len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "live" || parts[0] == "embed"):
			id = parts[1]
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidReference, u.Host)
	}
	if id == "" || !videoIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidReference, ref)
	}
	return id, nil
}

// runs yt-dlp with the provided args and returns (stdout, stderr, error)
func (c *Client) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	c.log.Infoln(c.bin, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		c.log.Errorf("yt-dlp error: %v", err)
	}
	c.log.Debugln("stdout:", stdout.String())
	c.log.Debugln("stderr:", stderr.String())
	return stdout.Bytes(), stderr.Bytes(), err
}

func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, _, err := c.Run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// GetVideoInfo fetches metadata without downloading media.
func (c *Client) GetVideoInfo(ctx context.Context, ref string) (VideoInfo, error) {
	if _, err := ValidateReference(ref); err != nil {
		return VideoInfo{}, err
	}
	stdout, stderr, err := c.Run(ctx, "--dump-single-json", "--no-playlist", "--skip-download", ref)
	if err != nil {
		return VideoInfo{}, &DownloadError{Ref: ref, Output: strings.TrimSpace(string(stderr)), Err: err}
	}
	var info VideoInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return VideoInfo{}, &DownloadError{Ref: ref, Err: fmt.Errorf("decode video info: %w", err)}
	}
	return info, nil
}

// DownloadVideo downloads ref into destDir as source.<ext>. onProgress, when
// non-nil, receives the download percentage parsed from yt-dlp's output.
func (c *Client) DownloadVideo(ctx context.Context, ref, destDir string, onProgress func(percent float64)) (Download, error) {
	info, err := c.GetVideoInfo(ctx, ref)
	if err != nil {
		return Download{}, err
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--no-part",
		"-f", "bv*[height<=1080]+ba/b[height<=1080]/b",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(destDir, "source.%(ext)s"),
		ref,
	}
	progress := func(line string) {
		if onProgress == nil || !strings.HasPrefix(line, "[download]") {
			return
		}
		m := downloadPercentRe.FindStringSubmatch(line)
		if m == nil {
			return
		}
		if p, err := strconv.ParseFloat(m[1], 64); err == nil {
			onProgress(p)
		}
	}
	if output, err := c.stream(ctx, args, progress); err != nil {
		return Download{}, &DownloadError{Ref: ref, Output: output, Err: err}
	}

	path, err := findSource(destDir)
	if err != nil {
		return Download{}, &DownloadError{Ref: ref, Err: err}
	}
	return Download{
		ID:        info.ID,
		Title:     info.Title,
		Duration:  info.Duration,
		LocalPath: path,
	}, nil
}

// Cleanup removes downloaded media. Failures are only logged.
func (c *Client) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warnf("cleanup %s: %v", path, err)
		return
	}
	c.log.Debugln("removed", path)
}

func findSource(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "source.*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		ext := filepath.Ext(m)
		if ext == ".part" || ext == ".ytdl" || strings.HasSuffix(m, ".temp.mp4") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("yt-dlp reported success but no media file was written to %s", dir)
}

// stream runs yt-dlp and hands every output line to onLine as it arrives. The
// returned string holds a bounded tail of stderr for error reporting.
func (c *Client) stream(ctx context.Context, args []string, onLine func(line string)) (string, error) {
	c.log.Infoln(c.bin, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, c.bin, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, keep bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			if keep {
				appendLimited(&errBuf, line)
			}
			onLine(line)
			mu.Unlock()
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		out := strings.TrimSpace(errBuf.String())
		c.log.Errorf("yt-dlp failed: %v\n%s", err, out)
		return out, fmt.Errorf("yt-dlp failed: %w", err)
	}
	return "", nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(b *strings.Builder, line string) {
	const maxKeep = 8192
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
