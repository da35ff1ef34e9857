// Package fixtures provides album helpers for integration tests.
package fixtures

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// FakeAlbums creates identity album directories with small media files.
type FakeAlbums struct {
	BaseDir string
}

// NewFakeAlbums creates a fixture generator rooted at baseDir.
func NewFakeAlbums(baseDir string) *FakeAlbums {
	return &FakeAlbums{BaseDir: baseDir}
}

// Path returns the album directory of identity.
func (f *FakeAlbums) Path(identity string) string {
	return filepath.Join(f.BaseDir, identity)
}

// Create makes the album of identity and writes names into it. Stills are
// real 16x12 JPEGs shaded by index; anything with a video extension gets
// placeholder bytes. Modification times increase with the argument order.
func (f *FakeAlbums) Create(identity string, names ...string) error {
	dir := f.Path(identity)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range names {
		path := filepath.Join(dir, name)
		if domain.NewMediaFile(path).Kind() == domain.MediaVideo {
			if err := os.WriteFile(path, []byte("not really a video"), 0644); err != nil {
				return err
			}
		} else if err := imgio.Save(path, Still(16, 12, uint8(40*(i+1))), imgio.JPEGEncoder(90)); err != nil {
			return err
		}

		mod := base.Add(time.Duration(i) * time.Second)
		if err := os.Chtimes(path, mod, mod); err != nil {
			return err
		}
	}
	return nil
}

// Exists checks whether the album of identity exists.
func (f *FakeAlbums) Exists(identity string) bool {
	info, err := os.Stat(f.Path(identity))
	return err == nil && info.IsDir()
}

// Count returns the number of entries in the album of identity.
func (f *FakeAlbums) Count(identity string) int {
	entries, err := os.ReadDir(f.Path(identity))
	if err != nil {
		return 0
	}
	return len(entries)
}

// Still returns a solid gray image.
func Still(width, height int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
