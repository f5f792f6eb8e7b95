//go:build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facewatch/internal/config"
)

func init() {
	openDeviceFunc = func(cfg config.CameraConfig, logger *slog.Logger) Source {
		return &DeviceSource{cfg: cfg, logger: logger}
	}
}

// DeviceSource reads from a camera index or a stream URL through OpenCV.
type DeviceSource struct {
	cfg    config.CameraConfig
	logger *slog.Logger

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (d *DeviceSource) String() string { return d.cfg.Source }

func (d *DeviceSource) Open(ctx context.Context) error {
	var device any = d.cfg.Source
	if idx, err := strconv.Atoi(d.cfg.Source); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return fmt.Errorf("%w: %s did not open", ErrDeviceUnavailable, d.cfg.Source)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(d.cfg.FPS))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.vc = vc
	d.mat = gocv.NewMat()
	d.logger.Debug("capture device opened", "source", d.cfg.Source)
	return nil
}

// Capture reads one frame. An empty read returns a nil frame and no error so
// the frame buffer substitutes the last good one.
func (d *DeviceSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vc == nil {
		return nil, errors.New("capture device not open")
	}
	if ok := d.vc.Read(&d.mat); !ok {
		return nil, fmt.Errorf("reading from %s failed", d.cfg.Source)
	}
	if d.mat.Empty() {
		return nil, nil
	}
	return d.mat.ToImage()
}

func (d *DeviceSource) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	_ = d.mat.Close()
	d.vc = nil
	return err
}
