package subtitles

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Whisper transcribes media with the openai-whisper command line tool. A
// Whisper without a binary is disabled and produces no subtitles.
type Whisper struct {
	bin   string
	model string
	log   *logrus.Entry
}

func NewWhisper(bin, model string, log *logrus.Entry) *Whisper {
	return &Whisper{bin: bin, model: model, log: log}
}

func (w *Whisper) Enabled() bool { return w.bin != "" }

// GenerateSubtitles writes <video basename>.srt into outputDir and returns its
// path. The empty path means subtitles are disabled.
func (w *Whisper) GenerateSubtitles(ctx context.Context, videoPath, outputDir string) (string, error) {
	if !w.Enabled() {
		return "", nil
	}
	args := []string{
		videoPath,
		"--model", w.model,
		"--output_format", "srt",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	w.log.Infoln(w.bin, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, w.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		w.log.Debugln("stderr:", stderr.String())
		return "", fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	out := filepath.Join(outputDir, base+".srt")
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("whisper finished without writing %s: %w", out, err)
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
