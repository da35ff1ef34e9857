package opencv

import (
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// CameraOptions configures the sensors.
type CameraOptions struct {
	SelfieID  int
	ForwardID int
	Width     int
	Height    int
	FPS       float64
	Codec     string // FourCC for recordings, e.g. "mp4v"
}

// GocvDriver opens V4L2 cameras through OpenCV.
type GocvDriver struct {
	opts   CameraOptions
	logger *zap.Logger
}

// NewGocvDriver creates a camera driver backed by gocv.
func NewGocvDriver(opts CameraOptions, logger *zap.Logger) *GocvDriver {
	return &GocvDriver{opts: opts, logger: logger}
}

// Open opens the device mapped to cam.
func (d *GocvDriver) Open(cam domain.Camera) (domain.CameraHandle, error) {
	id := d.opts.SelfieID
	if cam == domain.CameraForward {
		id = d.opts.ForwardID
	}

	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("device %d is not open", id)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(d.opts.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(d.opts.Height))
	capture.Set(gocv.VideoCaptureFPS, d.opts.FPS)

	d.logger.Debug("gocv device opened",
		zap.Int("device", id),
		zap.String("camera", cam.String()))

	return &gocvHandle{
		cam:     cam,
		capture: capture,
		frame:   gocv.NewMat(),
		opts:    d.opts,
	}, nil
}

// gocvHandle is one open OpenCV capture. Recording appends every preview frame.
type gocvHandle struct {
	mu      sync.Mutex
	cam     domain.Camera
	capture *gocv.VideoCapture
	frame   gocv.Mat
	writer  *gocv.VideoWriter
	opts    CameraOptions
}

func (h *gocvHandle) Camera() domain.Camera {
	return h.cam
}

func (h *gocvHandle) read() error {
	if ok := h.capture.Read(&h.frame); !ok || h.frame.Empty() {
		return fmt.Errorf("failed to read frame from %s camera", h.cam)
	}
	return nil
}

func (h *gocvHandle) PreviewFrame() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.read(); err != nil {
		return nil, err
	}
	if h.writer != nil {
		if err := h.writer.Write(h.frame); err != nil {
			return nil, fmt.Errorf("write recording frame: %w", err)
		}
	}
	return h.frame.ToImage()
}

func (h *gocvHandle) CaptureStill() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.read(); err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, h.frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory released by Close.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func (h *gocvHandle) StartRecording(outPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.writer != nil {
		return fmt.Errorf("already recording")
	}

	width := int(h.capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(h.capture.Get(gocv.VideoCaptureFrameHeight))
	if width <= 0 || height <= 0 {
		width, height = h.opts.Width, h.opts.Height
	}
	fps := h.capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = h.opts.FPS
	}

	writer, err := gocv.VideoWriterFile(outPath, h.opts.Codec, fps, width, height, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("video writer for %s is not open", outPath)
	}
	h.writer = writer
	return nil
}

func (h *gocvHandle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.writer == nil {
		return nil
	}
	err := h.writer.Close()
	h.writer = nil
	return err
}

func (h *gocvHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var werr error
	if h.writer != nil {
		werr = h.writer.Close()
		h.writer = nil
	}
	h.frame.Close()
	if err := h.capture.Close(); err != nil {
		return fmt.Errorf("error closing %s camera: %w", h.cam, err)
	}
	return werr
}

// Ensure GocvDriver implements domain.CameraDriver.
var _ domain.CameraDriver = (*GocvDriver)(nil)
