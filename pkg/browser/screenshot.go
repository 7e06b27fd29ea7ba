package browser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// ScreenshotSubdir is the directory, relative to the caller's output
// directory, that receives persisted screenshots.
const ScreenshotSubdir = ".browser_screenshots"

// maxNameAttempts bounds retries when another writer took a file name.
const maxNameAttempts = 16

// ScreenshotStore persists PNG screenshots and returns their path.
type ScreenshotStore interface {
	Save(dir string, png []byte) (string, error)
}

// FileScreenshotStore writes screenshot_<timestamp>_<seq>.png files. Names
// never collide within a process; across processes an existing file is
// skipped rather than overwritten.
type FileScreenshotStore struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewFileScreenshotStore creates a store using the wall clock.
func NewFileScreenshotStore() *FileScreenshotStore {
	return &FileScreenshotStore{now: time.Now}
}

var defaultScreenshotStore = NewFileScreenshotStore()

// Save writes png under dir/ScreenshotSubdir.
func (s *FileScreenshotStore) Save(dir string, png []byte) (string, error) {
	if dir == "" {
		return "", errors.New("screenshot dir is empty")
	}
	if len(png) == 0 {
		return "", errors.New("screenshot is empty")
	}

	target := filepath.Join(dir, ScreenshotSubdir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	stamp := s.now().Format("20060102_150405")
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fmt.Sprintf("screenshot_%s_%04d.png", stamp, s.seq.Add(1))
		path := filepath.Join(target, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create screenshot file: %w", err)
		}
		if _, err := f.Write(png); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write screenshot: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close screenshot: %w", err)
		}

		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return path, nil
	}
	return "", fmt.Errorf("no free screenshot name in %s after %d attempts", target, maxNameAttempts)
}
