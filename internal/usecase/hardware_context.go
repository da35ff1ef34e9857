package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// HardwareOptions configures camera open retries.
type HardwareOptions struct {
	RetryInitial time.Duration
	RetryMax     time.Duration
	Now          func() time.Time
}

// HardwareContext owns the single open camera handle.
// Switching cameras always closes the current handle before opening the next.
type HardwareContext struct {
	driver    domain.CameraDriver
	handle    domain.CameraHandle
	want      domain.Camera
	opts      HardwareOptions
	backoff   time.Duration
	nextRetry time.Time
	logger    *zap.Logger
}

// NewHardwareContext creates a context with no camera open.
func NewHardwareContext(driver domain.CameraDriver, opts HardwareOptions, logger *zap.Logger) *HardwareContext {
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 500 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryInitial {
		opts.RetryMax = opts.RetryInitial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HardwareContext{driver: driver, opts: opts, logger: logger}
}

// Open opens cam at startup. Failure is returned without scheduling retries.
func (h *HardwareContext) Open(cam domain.Camera) error {
	h.release()
	h.want = cam
	handle, err := h.driver.Open(cam)
	if err != nil {
		return domain.NewError(domain.KindDeviceUnavailable, "open camera", cam.String(), err)
	}
	h.handle = handle
	h.logger.Info("camera opened", zap.String("camera", cam.String()))
	return nil
}

// Use makes cam the active camera. On failure the context keeps cam as the
// wanted camera and retries from Handle with exponential backoff.
func (h *HardwareContext) Use(cam domain.Camera) error {
	if h.handle != nil && h.want == cam {
		return nil
	}
	h.release()
	h.want = cam
	h.backoff = 0
	h.nextRetry = time.Time{}
	return h.tryOpen()
}

// Handle returns the open handle, retrying a failed open once the backoff
// has elapsed.
func (h *HardwareContext) Handle() (domain.CameraHandle, error) {
	if h.handle != nil {
		return h.handle, nil
	}
	if h.want == 0 || h.opts.Now().Before(h.nextRetry) {
		return nil, domain.ErrDeviceUnavailable
	}
	if err := h.tryOpen(); err != nil {
		return nil, err
	}
	return h.handle, nil
}

// Current returns the open handle without attempting to reopen.
func (h *HardwareContext) Current() domain.CameraHandle {
	return h.handle
}

// Active returns the camera the context is bound to.
func (h *HardwareContext) Active() domain.Camera {
	return h.want
}

// Close releases the open handle.
func (h *HardwareContext) Close() error {
	if h.handle == nil {
		return nil
	}
	err := h.handle.Close()
	h.handle = nil
	return err
}

func (h *HardwareContext) tryOpen() error {
	handle, err := h.driver.Open(h.want)
	if err != nil {
		if h.backoff == 0 {
			h.backoff = h.opts.RetryInitial
		} else {
			h.backoff *= 2
			if h.backoff > h.opts.RetryMax {
				h.backoff = h.opts.RetryMax
			}
		}
		h.nextRetry = h.opts.Now().Add(h.backoff)
		h.logger.Warn("camera open failed, will retry",
			zap.String("camera", h.want.String()),
			zap.Duration("backoff", h.backoff),
			zap.Error(err))
		return domain.NewError(domain.KindDeviceUnavailable, "open camera", h.want.String(), err)
	}
	h.handle = handle
	h.backoff = 0
	h.nextRetry = time.Time{}
	h.logger.Info("camera opened", zap.String("camera", h.want.String()))
	return nil
}

func (h *HardwareContext) release() {
	if h.handle == nil {
		return
	}
	cam := h.handle.Camera()
	if err := h.handle.Close(); err != nil {
		h.logger.Warn("failed to close camera",
			zap.String("camera", cam.String()),
			zap.Error(err))
	}
	h.handle = nil
}
