package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sys/unix"

	"shorts-site/config"
)

// getFreeSpace returns the free space in bytes for the filesystem containing the given directory
func getFreeSpace(dir string) (uint64, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(dir, &stat)
	if err != nil {
		return 0, fmt.Errorf("error getting filesystem stats: %v", err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// getDirectorySize calculates the total size of a directory in bytes
func getDirectorySize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error walking directory: %v", err)
	}
	return size, nil
}

type BuildInfo struct {
	BuildDate    string `json:"buildDate"`
	BuildID      string `json:"buildId"`
	BuildIDShort string `json:"buildIdShort"`
}

func MakeBuildInfo() BuildInfo {
	sha := config.GetGitSHA()
	short := sha
	if len(short) > 7 {
		short = short[:7]
	}
	return BuildInfo{
		BuildDate:    config.GetBuildDate(),
		BuildID:      sha,
		BuildIDShort: short,
	}
}

type statusResponse struct {
	Tools     map[string]string `json:"tools"`
	FreeMiB   string            `json:"freeMiB"`
	UsedMiB   string            `json:"usedMiB"`
	QueueBusy bool              `json:"queueBusy"`
	Build     BuildInfo         `json:"build"`
}

func (s *Server) StatusGet(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := map[string]string{}
	for _, name := range names {
		v, err := s.Tools[name].Version(ctx)
		if err != nil {
			s.log.Errorln(name, "version:", err)
			v = "unavailable"
		}
		tools[name] = strings.TrimSpace(v)
	}

	free, err := getFreeSpace(s.DataDir)
	if err != nil {
		s.log.Errorln(err)
	}
	used, err := getDirectorySize(s.DataDir)
	if err != nil {
		s.log.Errorln(err)
	}

	return c.JSON(http.StatusOK, statusResponse{
		Tools:     tools,
		FreeMiB:   fmt.Sprintf("%.2f", float64(free)/1024/1024),
		UsedMiB:   fmt.Sprintf("%.2f", float64(used)/1024/1024),
		QueueBusy: s.Queue.IsBusy(),
		Build:     MakeBuildInfo(),
	})
}
