package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kozaktomas/facewatch/internal/logging"
)

// watchFrameTimeout is how long Capture waits for a new file before failing.
const watchFrameTimeout = 5 * time.Second

var errNoFrame = errors.New("no new frame")

// WatchSource returns the newest image written into a directory by an external
// frame grabber. Each Capture blocks until a file is created or rewritten.
type WatchSource struct {
	dir     string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

func NewWatchSource(dir string, logger *slog.Logger) *WatchSource {
	return &WatchSource{dir: dir, timeout: watchFrameTimeout, logger: logging.OrDefault(logger)}
}

func (s *WatchSource) String() string { return "watch:" + s.dir }

func (s *WatchSource) Open(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDeviceUnavailable, s.dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating watcher: %w", ErrDeviceUnavailable, err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: watching %s: %w", ErrDeviceUnavailable, s.dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.watcher = w
	s.logger.Debug("watching directory for frames", "dir", s.dir)
	return nil
}

// Capture waits for the next image write. Events that arrived while the
// previous frame was processed are drained so the newest file wins.
func (s *WatchSource) Capture(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w == nil {
		return nil, fmt.Errorf("%w: source not open", ErrDeviceUnavailable)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w within %s", errNoFrame, s.timeout)
		case err, ok := <-w.Errors:
			if !ok {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("watching %s: %w", s.dir, err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil, io.EOF
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) || !isImageFile(ev.Name) {
				s.logger.Debug("ignoring watch event", "event", ev.String())
				continue
			}
			return readImage(newest(w.Events, ev.Name))
		}
	}
}

// newest drains pending events and returns the last image path seen.
func newest(events <-chan fsnotify.Event, path string) string {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return path
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && isImageFile(ev.Name) {
				path = ev.Name
			}
		default:
			return path
		}
	}
}

func (s *WatchSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
