// Package window presents frames in an ebiten window and forwards the
// simulated control keys.
package window

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// Options configures the window.
type Options struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
}

// KeyMap maps ebiten keys to control keys.
var KeyMap = map[ebiten.Key]domain.Key{
	ebiten.KeyDigit1:     domain.KeySelectorOne,
	ebiten.KeyDigit2:     domain.KeySelectorTwo,
	ebiten.KeyDigit3:     domain.KeySelectorThree,
	ebiten.KeyDigit4:     domain.KeySelectorFour,
	ebiten.KeyDigit0:     domain.KeyClearOverride,
	ebiten.KeyArrowRight: domain.KeyEncoderForward,
	ebiten.KeyArrowLeft:  domain.KeyEncoderReverse,
	ebiten.KeySpace:      domain.KeyCapture,
	ebiten.KeyN:          domain.KeyToggleTag,
}

// quitKeys end the game loop.
var quitKeys = []ebiten.Key{ebiten.KeyEscape, ebiten.KeyQ}

// Window implements domain.Display and ebiten.Game. Present and Clear may
// be called from any goroutine; the frame is uploaded on the next Draw.
type Window struct {
	opts   Options
	onKey  func(domain.Key)
	logger *zap.Logger

	mu      sync.Mutex
	frame   image.Image
	bg      color.Color
	dirty   bool
	closing bool

	tex  *ebiten.Image
	done chan struct{}
	once sync.Once
}

// New creates a window. onKey receives mapped key presses and may be nil.
func New(opts Options, onKey func(domain.Key), logger *zap.Logger) *Window {
	return &Window{
		opts:   opts,
		onKey:  onKey,
		logger: logger,
		bg:     color.Black,
		done:   make(chan struct{}),
	}
}

// Run configures the window and blocks in the ebiten game loop. It must be
// called from the main goroutine. A quit key or window close returns nil.
func (w *Window) Run() error {
	defer w.once.Do(func() { close(w.done) })

	ebiten.SetWindowTitle(w.opts.Title)
	ebiten.SetWindowSize(w.opts.Width, w.opts.Height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if w.opts.Fullscreen {
		ebiten.SetFullscreen(true)
		ebiten.SetCursorMode(ebiten.CursorModeHidden)
	}

	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	w.logger.Info("window closed")
	return nil
}

// Done is closed when the game loop has exited.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Close asks the game loop to exit on its next update.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closing = true
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	w.mu.Lock()
	closing := w.closing
	w.mu.Unlock()
	if closing {
		return ebiten.Termination
	}

	for _, k := range quitKeys {
		if inpututil.IsKeyJustPressed(k) {
			w.logger.Info("quit key pressed", zap.String("key", k.String()))
			return ebiten.Termination
		}
	}
	if w.onKey != nil {
		for key, control := range KeyMap {
			if inpututil.IsKeyJustPressed(key) {
				w.onKey(control)
			}
		}
	}
	return nil
}

// Draw implements ebiten.Game.
func (w *Window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	if w.dirty {
		if w.tex != nil {
			w.tex.Deallocate()
			w.tex = nil
		}
		if w.frame != nil {
			w.tex = ebiten.NewImageFromImage(w.frame)
		}
		w.dirty = false
	}
	bg := w.bg
	w.mu.Unlock()

	screen.Fill(bg)
	if w.tex == nil {
		return
	}

	// Center the frame; frames are already fitted to the logical size.
	sb, tb := screen.Bounds(), w.tex.Bounds()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(sb.Dx()-tb.Dx())/2, float64(sb.Dy()-tb.Dy())/2)
	screen.DrawImage(w.tex, op)
}

// Layout implements ebiten.Game with a fixed logical resolution.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return w.opts.Width, w.opts.Height
}

func (w *Window) Present(frame image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = frame
	w.dirty = true
	return nil
}

func (w *Window) Clear(background color.Color) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = nil
	w.bg = background
	w.dirty = true
	return nil
}

func (w *Window) Size() (int, int) {
	return w.opts.Width, w.opts.Height
}

var (
	_ domain.Display = (*Window)(nil)
	_ ebiten.Game    = (*Window)(nil)
)
