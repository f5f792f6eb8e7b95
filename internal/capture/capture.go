// Package capture provides the video sources the recognition loop reads from:
// image directories, a watched directory fed by an external grabber, HTTP
// snapshot cameras and, with the gocv build tag, V4L devices and RTSP streams.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// ErrDeviceUnavailable is returned by Open when a source cannot be acquired.
var ErrDeviceUnavailable = errors.New("video source unavailable")

// Source produces frames until it is released. Capture returns io.EOF once a
// finite source is exhausted.
type Source interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) (image.Image, error)
	Release() error
	String() string
}

// openDeviceFunc opens a camera index or stream URL. Set from init in device_gocv.go.
var openDeviceFunc func(cfg config.CameraConfig, logger *slog.Logger) Source

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".gif"}

// New selects a source from cfg.Source:
//
//	dir:/path     images in the directory, in name order
//	watch:/path   newest image written to the directory
//	http(s)://... snapshot URL polled once per frame
//	anything else camera index or stream URL (gocv build tag)
//
// The source is not opened yet.
func New(cfg config.CameraConfig, logger *slog.Logger) (Source, error) {
	logger = logging.OrDefault(logger)
	src := strings.TrimSpace(cfg.Source)

	switch {
	case src == "":
		return nil, fmt.Errorf("%w: empty camera source", ErrDeviceUnavailable)
	case strings.HasPrefix(src, "dir:"):
		return NewDirSource(strings.TrimPrefix(src, "dir:")), nil
	case strings.HasPrefix(src, "watch:"):
		return NewWatchSource(strings.TrimPrefix(src, "watch:"), logger), nil
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return NewSnapshotSource(src, 0), nil
	}

	if openDeviceFunc == nil {
		return nil, fmt.Errorf("%w: %s needs a build with -tags gocv", ErrDeviceUnavailable, src)
	}
	return openDeviceFunc(cfg, logger), nil
}

func isImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}
