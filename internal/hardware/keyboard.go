package hardware

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// KeyboardTagID is the identity of the tag simulated with the N key.
const KeyboardTagID = "keyboard-card"

// KeyboardInput turns window key presses into control input. It serves as
// both InputSource and TagReader when no hardware is attached.
type KeyboardInput struct {
	mu       sync.Mutex
	encoder  []domain.Direction
	captures int
	override []domain.SelectorPosition
	tagOn    bool
	logger   *zap.Logger
}

// NewKeyboardInput creates an idle keyboard input.
func NewKeyboardInput(logger *zap.Logger) *KeyboardInput {
	return &KeyboardInput{logger: logger}
}

// Press records one key press. Safe to call from the window goroutine.
func (k *KeyboardInput) Press(key domain.Key) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if pos, ok := key.Selector(); ok {
		k.override = append(k.override, pos)
		return
	}
	switch key {
	case domain.KeyEncoderForward:
		k.encoder = append(k.encoder, domain.DirectionForward)
	case domain.KeyEncoderReverse:
		k.encoder = append(k.encoder, domain.DirectionReverse)
	case domain.KeyCapture:
		k.captures++
	case domain.KeyToggleTag:
		k.tagOn = !k.tagOn
		k.logger.Info("simulated tag toggled", zap.Bool("present", k.tagOn))
	}
}

// PollSelector reports no physical switch.
func (k *KeyboardInput) PollSelector() domain.SelectorPosition {
	return domain.SelectorNone
}

func (k *KeyboardInput) PollEncoderTick() (domain.Direction, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.encoder) == 0 {
		return 0, false
	}
	dir := k.encoder[0]
	k.encoder = k.encoder[1:]
	return dir, true
}

// PollCaptureButton reports one Pressed per queued key press.
func (k *KeyboardInput) PollCaptureButton() domain.ButtonState {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.captures == 0 {
		return domain.ButtonReleased
	}
	k.captures--
	return domain.ButtonPressed
}

func (k *KeyboardInput) PollOverride() (domain.SelectorPosition, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.override) == 0 {
		return domain.SelectorNone, false
	}
	pos := k.override[0]
	k.override = k.override[1:]
	return pos, true
}

// PollTag reports the simulated tag while toggled on.
func (k *KeyboardInput) PollTag() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tagOn {
		return KeyboardTagID, true
	}
	return "", false
}

func (k *KeyboardInput) Close() error {
	return nil
}

// WithOverrides combines physical controls with keyboard overrides:
// selector, encoder and capture come from primary, overrides from keys.
func WithOverrides(primary domain.InputSource, keys *KeyboardInput) domain.InputSource {
	return &overrideInput{InputSource: primary, keys: keys}
}

type overrideInput struct {
	domain.InputSource
	keys *KeyboardInput
}

func (o *overrideInput) PollOverride() (domain.SelectorPosition, bool) {
	return o.keys.PollOverride()
}

// Ensure KeyboardInput implements both input interfaces.
var (
	_ domain.InputSource = (*KeyboardInput)(nil)
	_ domain.TagReader   = (*KeyboardInput)(nil)
)
