package hardware

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// MockDriver simulates both sensors for local development and tests.
// Frames are synthetic test patterns; recordings are a stream of JPEG frames.
type MockDriver struct {
	mu      sync.Mutex
	width   int
	height  int
	failing map[domain.Camera]bool
	opens   int
	logger  *zap.Logger
}

// NewMockDriver creates a mock driver producing width x height frames.
func NewMockDriver(width, height int, logger *zap.Logger) *MockDriver {
	return &MockDriver{
		width:   width,
		height:  height,
		failing: make(map[domain.Camera]bool),
		logger:  logger,
	}
}

// SetFailing makes Open fail for cam until cleared.
func (d *MockDriver) SetFailing(cam domain.Camera, failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[cam] = failing
}

// Opens returns how many handles were opened so far.
func (d *MockDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *MockDriver) Open(cam domain.Camera) (domain.CameraHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failing[cam] {
		return nil, fmt.Errorf("mock %s camera unplugged", cam)
	}
	d.opens++
	d.logger.Info("[MOCK] camera opened", zap.String("camera", cam.String()))
	return &MockHandle{cam: cam, width: d.width, height: d.height, logger: d.logger}, nil
}

// MockHandle is an open mock sensor.
type MockHandle struct {
	mu       sync.Mutex
	cam      domain.Camera
	width    int
	height   int
	frameNo  int
	rec      *os.File
	recPath  string
	recorded int
	closed   bool
	logger   *zap.Logger
}

func (h *MockHandle) Camera() domain.Camera {
	return h.cam
}

// pattern draws a moving bar over a background tinted by camera.
func (h *MockHandle) pattern() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	bg := color.RGBA{R: 40, G: 90, B: 160, A: 255}
	if h.cam == domain.CameraForward {
		bg = color.RGBA{R: 160, G: 90, B: 40, A: 255}
	}
	bar := 0
	if h.width > 0 {
		bar = (h.frameNo * 8) % h.width
	}
	for y := 0; y < h.height; y++ {
		for x := 0; x < h.width; x++ {
			if x >= bar && x < bar+16 {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
				continue
			}
			img.SetRGBA(x, y, bg)
		}
	}
	h.frameNo++
	return img
}

func (h *MockHandle) PreviewFrame() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("mock %s camera closed", h.cam)
	}
	img := h.pattern()
	if h.rec != nil {
		if err := imgio.JPEGEncoder(70)(h.rec, img); err != nil {
			return nil, fmt.Errorf("write recording frame: %w", err)
		}
		h.recorded++
	}
	return img, nil
}

func (h *MockHandle) CaptureStill() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("mock %s camera closed", h.cam)
	}
	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(90)(&buf, h.pattern()); err != nil {
		return nil, fmt.Errorf("encode still: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *MockHandle) StartRecording(outPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rec != nil {
		return fmt.Errorf("already recording")
	}
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	h.rec = f
	h.recPath = outPath
	h.recorded = 0
	h.logger.Info("[MOCK] recording started", zap.String("path", outPath))
	return nil
}

func (h *MockHandle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *MockHandle) stopLocked() error {
	if h.rec == nil {
		return nil
	}
	err := h.rec.Close()
	h.logger.Info("[MOCK] recording stopped",
		zap.String("path", h.recPath),
		zap.Int("frames", h.recorded))
	h.rec = nil
	return err
}

// Recorded returns the number of frames written to the current or last recording.
func (h *MockHandle) Recorded() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recorded
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.stopLocked()
	h.closed = true
	return err
}

// Ensure MockDriver implements domain.CameraDriver.
var _ domain.CameraDriver = (*MockDriver)(nil)
