package domain

import "time"

// EventKind enumerates the inputs the state machine consumes.
type EventKind int

const (
	EventTick EventKind = iota
	EventSelector
	EventSelectorOverride
	EventEncoder
	EventCaptureButton
	EventTagPresent
	EventTagAbsent
	EventAlbumChanged
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventSelector:
		return "selector"
	case EventSelectorOverride:
		return "selector_override"
	case EventEncoder:
		return "encoder"
	case EventCaptureButton:
		return "capture_button"
	case EventTagPresent:
		return "tag_present"
	case EventTagAbsent:
		return "tag_absent"
	case EventAlbumChanged:
		return "album_changed"
	}
	return "unknown"
}

// Event is one typed input. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	At        time.Time
	Position  SelectorPosition // EventSelector, EventSelectorOverride (SelectorNone clears)
	Direction Direction        // EventEncoder
	Button    ButtonState      // EventCaptureButton
	Identity  string           // EventTagPresent
	Path      string           // EventAlbumChanged
}

// Interactive reports whether the event counts as user interaction.
// Ticks and album notifications are not; selector observations are
// decided by the machine because most of them are unchanged polls.
func (e Event) Interactive() bool {
	switch e.Kind {
	case EventTick, EventAlbumChanged, EventSelector:
		return false
	}
	return true
}

// Key is a simulated control key delivered by the display window.
type Key int

const (
	KeyNone Key = iota
	KeySelectorOne
	KeySelectorTwo
	KeySelectorThree
	KeySelectorFour
	KeyClearOverride
	KeyEncoderForward
	KeyEncoderReverse
	KeyCapture
	KeyToggleTag
)

// Selector returns the selector position a number key stands for.
func (k Key) Selector() (SelectorPosition, bool) {
	switch k {
	case KeySelectorOne:
		return SelectorOne, true
	case KeySelectorTwo:
		return SelectorTwo, true
	case KeySelectorThree:
		return SelectorThree, true
	case KeySelectorFour:
		return SelectorFour, true
	case KeyClearOverride:
		return SelectorNone, true
	}
	return SelectorNone, false
}
