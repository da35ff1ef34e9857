package domain

import (
	"context"
	"image"
	"image/color"
)

// FileSystem handles the album directory operations.
type FileSystem interface {
	// ListRegularFiles returns names of regular files in dir.
	// Symlinks and directories are excluded.
	ListRegularFiles(dir string) ([]string, error)

	// EnsureDir creates dir (and parents) if missing. Idempotent.
	EnsureDir(path string) error

	// Exists checks if a path exists.
	Exists(path string) bool

	// WriteNew writes data to a file that must not exist yet.
	WriteNew(path string, data []byte) error

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string
}

// CameraDriver opens camera sensors.
type CameraDriver interface {
	// Open opens the sensor for cam. Only one handle may be open at a time.
	Open(cam Camera) (CameraHandle, error)
}

// CameraHandle is one open camera sensor.
type CameraHandle interface {
	Camera() Camera

	// PreviewFrame reads the next live frame. While recording, the frame is
	// also appended to the recording.
	PreviewFrame() (image.Image, error)

	// CaptureStill returns an encoded JPEG still.
	CaptureStill() ([]byte, error)

	// StartRecording begins writing video to outPath.
	StartRecording(outPath string) error

	// StopRecording finalizes the current recording.
	StopRecording() error

	// Close releases the sensor.
	Close() error
}

// InputSource polls the physical (or simulated) controls.
type InputSource interface {
	// PollSelector returns the current four-position switch value.
	PollSelector() SelectorPosition

	// PollEncoderTick returns at most one pending encoder step.
	PollEncoderTick() (Direction, bool)

	// PollCaptureButton returns the capture button state.
	PollCaptureButton() ButtonState

	// PollOverride returns a pending selector override request.
	// ok is false when nothing changed; SelectorNone clears the override.
	PollOverride() (pos SelectorPosition, ok bool)

	Close() error
}

// TagReader polls the identity tag reader.
type TagReader interface {
	// PollTag returns the id of the tag currently presented, if any.
	PollTag() (string, bool)

	Close() error
}

// Display is the screen surface.
type Display interface {
	Present(frame image.Image) error
	Clear(background color.Color) error
	Size() (width, height int)
}

// StillDecoder decodes a still image, fitted to the display.
type StillDecoder interface {
	Decode(path string, width, height int) (image.Image, error)
}

// VideoOpener opens video files for frame-by-frame decoding.
type VideoOpener interface {
	Open(path string) (VideoStream, error)
}

// VideoStream is an open decode handle.
type VideoStream interface {
	// ReadFrame returns the next frame or io.EOF at end of stream.
	ReadFrame() (image.Image, error)

	// Rewind seeks back to frame 0.
	Rewind() error

	// FPS returns the stream frame rate (0 when unknown).
	FPS() float64

	Close() error
}

// CursorStore persists album cursors per identity.
type CursorStore interface {
	LoadCursor(identity string) (int, bool, error)
	SaveCursor(identity string, position int) error
}

// CaptureJournal records captured files.
type CaptureJournal interface {
	RecordCapture(c Capture) error
	LastCapture(identity string) (*Capture, error)
	CountCaptures(identity string) (int, error)
}

// StorageMonitor reports free space for a path.
type StorageMonitor interface {
	Usage(path string) (DiskStatus, error)
}

// MediaTagger stamps metadata onto captured files.
type MediaTagger interface {
	Tag(path, identity string) error
}

// AlbumWatcher reports changes to the watched album directory.
type AlbumWatcher interface {
	// Watch replaces the watched directory.
	Watch(dir string) error

	// Changes delivers paths that were created, removed or renamed.
	Changes() <-chan string

	Close() error
}

// StatusPublisher receives status snapshots from the tick loop.
type StatusPublisher interface {
	Publish(ctx context.Context, s Status)
}

// KeyProvider abstracts encryption key retrieval for the state store.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}
