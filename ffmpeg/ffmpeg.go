package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner invokes the ffmpeg toolchain binaries found on PATH.
type Runner struct {
	log     *logrus.Entry
	ffmpeg  string
	ffprobe string
}

func New(log *logrus.Entry) *Runner {
	return &Runner{
		log:     log,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}
}

// runs ffmpeg with the provided args and returns (stdout, stderr, error)
func (r *Runner) Ffmpeg(ctx context.Context, args ...string) ([]byte, []byte, error) {
	return r.run(ctx, r.ffmpeg, args...)
}

// runs ffprobe with the provided args and returns (stdout, stderr, error)
func (r *Runner) Ffprobe(ctx context.Context, args ...string) ([]byte, []byte, error) {
	return r.run(ctx, r.ffprobe, args...)
}

// Version returns the first line of `ffmpeg -version`
func (r *Runner) Version(ctx context.Context) (string, error) {
	stdout, _, err := r.Ffmpeg(ctx, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(stdout), "\n")
	return strings.TrimSpace(line), nil
}

func (r *Runner) run(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	r.log.Infoln(bin, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		r.log.Errorf("%s error: %v", bin, err)
		err = fmt.Errorf("%s failed: %w", bin, err)
	}
	r.log.Debugln("stdout:", tail(stdout.String(), 4096))
	r.log.Debugln("stderr:", tail(stderr.String(), 4096))
	return stdout.Bytes(), stderr.Bytes(), err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
