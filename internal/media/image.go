// Package media decodes gallery stills for display.
package media

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// ImageDecoder decodes stills with bild and scales them to fit the screen.
// The last decoded file is cached until its size or modification time changes.
type ImageDecoder struct {
	mu     sync.Mutex
	path   string
	width  int
	height int
	size   int64
	mod    time.Time
	img    image.Image
}

// NewImageDecoder creates a decoder with an empty cache.
func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{}
}

func (d *ImageDecoder) Decode(path string, width, height int) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.img != nil && d.path == path && d.width == width && d.height == height &&
		d.size == info.Size() && d.mod.Equal(info.ModTime()) {
		return d.img, nil
	}

	src, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	img := Fit(src, width, height)

	d.path, d.width, d.height = path, width, height
	d.size, d.mod = info.Size(), info.ModTime()
	d.img = img
	return img, nil
}

// Fit scales img to the largest size inside width x height, keeping its
// aspect ratio. Non-positive bounds return img unchanged.
func Fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 || w == 0 || h == 0 {
		return img
	}
	if w == width && h <= height || h == height && w <= width {
		return img
	}

	tw, th := width, height
	if w*height > h*width {
		th = max(1, h*width/w)
	} else {
		tw = max(1, w*height/h)
	}
	return transform.Resize(img, tw, th, transform.Linear)
}

// Ensure ImageDecoder implements domain.StillDecoder.
var _ domain.StillDecoder = (*ImageDecoder)(nil)
