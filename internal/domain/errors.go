package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that reach the state machine.
// Adapters translate raw OS and driver errors into one of these kinds.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindEmptyAlbum: the active album has no files.
	KindEmptyAlbum
	// KindStaleCursor: cursor beyond the listing after external deletion.
	KindStaleCursor
	// KindDirectoryCreate: an album directory could not be created.
	KindDirectoryCreate
	// KindDeviceUnavailable: camera or input hardware failed to open.
	KindDeviceUnavailable
	// KindCodecFailure: a media file could not be decoded.
	KindCodecFailure
	// KindStorageFull: not enough free space to capture.
	KindStorageFull
)

func (k ErrorKind) String() string {
	switch k {
	case KindEmptyAlbum:
		return "empty album"
	case KindStaleCursor:
		return "stale cursor"
	case KindDirectoryCreate:
		return "directory create failure"
	case KindDeviceUnavailable:
		return "device unavailable"
	case KindCodecFailure:
		return "codec failure"
	case KindStorageFull:
		return "storage full"
	}
	return "unknown"
}

// Error is a kidcam error carrying its kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrEmptyAlbum        = &Error{Kind: KindEmptyAlbum}
	ErrStaleCursor       = &Error{Kind: KindStaleCursor}
	ErrDirectoryCreate   = &Error{Kind: KindDirectoryCreate}
	ErrDeviceUnavailable = &Error{Kind: KindDeviceUnavailable}
	ErrCodecFailure      = &Error{Kind: KindCodecFailure}
	ErrStorageFull       = &Error{Kind: KindStorageFull}
)

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
