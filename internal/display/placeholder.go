// Package display holds the screen surfaces and the frames drawn when there
// is nothing real to show.
package display

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

var (
	Background    = color.RGBA{A: 255}
	panelColor    = color.RGBA{R: 48, G: 48, B: 48, A: 255}
	iconColor     = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	recordColor   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	warningColors = map[domain.ErrorKind]color.RGBA{
		domain.KindEmptyAlbum:        {R: 90, G: 90, B: 90, A: 255},
		domain.KindCodecFailure:      {R: 200, G: 40, B: 160, A: 255},
		domain.KindDeviceUnavailable: {R: 230, G: 160, B: 20, A: 255},
		domain.KindStorageFull:       {R: 230, G: 90, B: 20, A: 255},
		domain.KindDirectoryCreate:   {R: 230, G: 90, B: 20, A: 255},
	}
)

// Placeholder draws the full-screen frame for a condition with nothing to show.
func Placeholder(kind domain.ErrorKind, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: panelColor}, image.Point{}, draw.Src)

	size := min(width, height) / 3
	cx, cy := width/2, height/2
	icon := image.Rect(cx-size/2, cy-size/2, cx+size/2, cy+size/2)

	switch kind {
	case domain.KindEmptyAlbum:
		// Empty picture frame.
		outline(img, icon, max(2, size/16), iconColor)
	case domain.KindCodecFailure:
		outline(img, icon, max(2, size/16), iconColor)
		cross(img, icon.Inset(size/6), max(2, size/12), warningColors[kind])
	case domain.KindDeviceUnavailable:
		// Camera body with a crossed-out lens.
		body := image.Rect(icon.Min.X, icon.Min.Y+size/4, icon.Max.X, icon.Max.Y)
		fill(img, body, iconColor)
		disc(img, image.Pt(cx, body.Min.Y+body.Dy()/2), body.Dy()/3, panelColor)
		cross(img, icon, max(2, size/12), warningColors[kind])
	default:
		fill(img, icon, warningColor(kind))
	}
	return img
}

// Blank returns a frame filled with the background color.
func Blank(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	return img
}

// Decorate copies frame and overlays the recording dot and a notice badge.
// A KindUnknown notice draws no badge.
func Decorate(frame image.Image, recording bool, notice domain.ErrorKind) image.Image {
	if !recording && notice == domain.KindUnknown {
		return frame
	}
	b := frame.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), frame, b.Min, draw.Src)

	r := max(4, min(b.Dx(), b.Dy())/24)
	if recording {
		disc(img, image.Pt(b.Dx()-2*r, 2*r), r, recordColor)
	}
	if notice != domain.KindUnknown {
		badge := image.Rect(r, r, 3*r, 3*r)
		fill(img, badge, warningColor(notice))
	}
	return img
}

func warningColor(kind domain.ErrorKind) color.RGBA {
	if c, ok := warningColors[kind]; ok {
		return c
	}
	return iconColor
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func outline(img *image.RGBA, r image.Rectangle, t int, c color.Color) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), c)
	fill(img, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), c)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), c)
	fill(img, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func cross(img *image.RGBA, r image.Rectangle, t int, c color.Color) {
	n := min(r.Dx(), r.Dy())
	for i := 0; i < n; i++ {
		fill(img, image.Rect(r.Min.X+i, r.Min.Y+i, r.Min.X+i+t, r.Min.Y+i+t), c)
		fill(img, image.Rect(r.Max.X-i-t, r.Min.Y+i, r.Max.X-i, r.Min.Y+i+t), c)
	}
}

func disc(img *image.RGBA, center image.Point, radius int, c color.Color) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				p := center.Add(image.Pt(x, y))
				if p.In(img.Bounds()) {
					img.Set(p.X, p.Y, c)
				}
			}
		}
	}
}
