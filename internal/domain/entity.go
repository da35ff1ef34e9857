// Package domain contains core kidcam entities and collaborator interfaces.
// This is the innermost layer - no external dependencies.
package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultIdentity is the album used when no tag is presented.
const DefaultIdentity = "default"

// DisplayMode selects what the screen shows.
type DisplayMode int

const (
	DisplayGallery DisplayMode = iota + 1
	DisplayCapture
)

func (m DisplayMode) String() string {
	switch m {
	case DisplayGallery:
		return "gallery"
	case DisplayCapture:
		return "capture"
	}
	return "unknown"
}

// Camera identifies one of the two sensors.
type Camera int

const (
	CameraSelfie Camera = iota + 1
	CameraForward
)

func (c Camera) String() string {
	switch c {
	case CameraSelfie:
		return "selfie"
	case CameraForward:
		return "forward"
	}
	return "unknown"
}

// CaptureMode selects what a capture press records.
type CaptureMode int

const (
	CapturePicture CaptureMode = iota + 1
	CaptureVideo
)

func (m CaptureMode) String() string {
	switch m {
	case CapturePicture:
		return "picture"
	case CaptureVideo:
		return "video"
	}
	return "unknown"
}

// SelectorPosition is the position of the four-position switch.
// The zero value means the switch reported no position.
type SelectorPosition int

const (
	SelectorNone SelectorPosition = iota
	SelectorOne
	SelectorTwo
	SelectorThree
	SelectorFour
)

// Valid reports whether p is one of the four physical positions.
func (p SelectorPosition) Valid() bool {
	return p >= SelectorOne && p <= SelectorFour
}

// Mapping returns the camera and capture mode a selector position selects.
func (p SelectorPosition) Mapping() (Camera, CaptureMode, bool) {
	switch p {
	case SelectorOne:
		return CameraSelfie, CapturePicture, true
	case SelectorTwo:
		return CameraSelfie, CaptureVideo, true
	case SelectorThree:
		return CameraForward, CapturePicture, true
	case SelectorFour:
		return CameraForward, CaptureVideo, true
	}
	return 0, 0, false
}

// Direction is a rotary encoder step direction.
type Direction int

const (
	DirectionForward Direction = iota + 1
	DirectionReverse
)

func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}

// ButtonState is what the capture button poll reports.
type ButtonState int

const (
	ButtonReleased ButtonState = iota
	ButtonPressed
	ButtonHeld
)

// AppState is a snapshot of the application mode state.
// It is a value: callers get copies and cannot mutate the machine through it.
type AppState struct {
	DisplayMode       DisplayMode
	ActiveCamera      Camera
	CaptureMode       CaptureMode
	Recording         bool
	LastCaptureAt     time.Time
	LastInteractionAt time.Time
	Selector          SelectorPosition
	SelectorOverride  SelectorPosition // SelectorNone when unset
}

// InitialState is the state on startup.
func InitialState() AppState {
	return AppState{
		DisplayMode:  DisplayGallery,
		ActiveCamera: CameraSelfie,
		CaptureMode:  CapturePicture,
	}
}

// MediaKind classifies a gallery file.
type MediaKind int

const (
	MediaImage MediaKind = iota + 1
	MediaVideo
)

func (k MediaKind) String() string {
	if k == MediaVideo {
		return "video"
	}
	return "image"
}

// VideoExtensions are the extensions played as video. Everything else is a still.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".h264": true,
}

// MediaFile is one file in an album.
type MediaFile struct {
	Path      string
	Extension string // lower-case, with leading dot
}

// NewMediaFile builds a MediaFile from a full path.
func NewMediaFile(path string) MediaFile {
	return MediaFile{Path: path, Extension: strings.ToLower(filepath.Ext(path))}
}

// Kind classifies the file by extension.
func (f MediaFile) Kind() MediaKind {
	if VideoExtensions[f.Extension] {
		return MediaVideo
	}
	return MediaImage
}

// Capture is a journal record of one captured file.
type Capture struct {
	Identity   string
	Path       string
	Kind       MediaKind
	CapturedAt time.Time
}

// DiskStatus reports free space for the media volume.
type DiskStatus struct {
	TotalMB     uint64  `json:"total_mb"`
	FreeMB      uint64  `json:"free_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// Status is the externally published device status.
type Status struct {
	DisplayMode string     `json:"display_mode"`
	Camera      string     `json:"camera"`
	CaptureMode string     `json:"capture_mode"`
	Recording   bool       `json:"recording"`
	Identity    string     `json:"identity"`
	AlbumSize   int        `json:"album_size"`
	Disk        DiskStatus `json:"disk"`
}
