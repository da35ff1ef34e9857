package display

import (
	"image"
	"image/color"
	"sync"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// Headless is a display that keeps the last presented frame in memory.
// It backs the appliance when no screen is attached, and tests.
type Headless struct {
	mu       sync.Mutex
	width    int
	height   int
	frame    image.Image
	presents int
	clears   int
}

// NewHeadless creates a headless display of the given size.
func NewHeadless(width, height int) *Headless {
	return &Headless{width: width, height: height}
}

func (h *Headless) Present(frame image.Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = frame
	h.presents++
	return nil
}

func (h *Headless) Clear(background color.Color) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = nil
	h.clears++
	return nil
}

func (h *Headless) Size() (int, int) {
	return h.width, h.height
}

// Frame returns the last presented frame, nil after Clear.
func (h *Headless) Frame() image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// Counts returns how many times Present and Clear were called.
func (h *Headless) Counts() (presents, clears int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presents, h.clears
}

// Ensure Headless implements domain.Display.
var _ domain.Display = (*Headless)(nil)
