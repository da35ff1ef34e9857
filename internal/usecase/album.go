// Package usecase contains application business logic.
package usecase

import (
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// SortOrder controls how album listings are ordered.
type SortOrder string

const (
	// SortName orders by filename. Capture names are timestamps, so this is
	// chronological for files the camera wrote.
	SortName SortOrder = "name"
	// SortNative keeps the directory enumeration order.
	SortNative SortOrder = "native"
)

// Album is one identity's media directory plus a scroll cursor.
// The listing is recomputed on every call; only the cursor is kept.
type Album struct {
	fs       domain.FileSystem
	identity string
	path     string
	order    SortOrder
	position int
	logger   *zap.Logger
}

// NewAlbum creates an album bound to path. A missing directory is created on
// first use.
func NewAlbum(fs domain.FileSystem, identity, path string, order SortOrder, logger *zap.Logger) *Album {
	return &Album{
		fs:       fs,
		identity: identity,
		path:     path,
		order:    order,
		logger:   logger,
	}
}

// Identity returns the identity this album belongs to.
func (a *Album) Identity() string {
	return a.identity
}

// Path returns the album directory.
func (a *Album) Path() string {
	return a.path
}

// Position returns the raw cursor. It may be stale until the next
// CurrentFile or Scroll call.
func (a *Album) Position() int {
	return a.position
}

// Ensure recreates the album directory when it was removed externally.
func (a *Album) Ensure() error {
	if a.fs.Exists(a.path) {
		return nil
	}
	a.logger.Warn("album directory missing, recreating",
		zap.String("identity", a.identity),
		zap.String("path", a.path))
	if err := a.fs.EnsureDir(a.path); err != nil {
		return domain.NewError(domain.KindDirectoryCreate, "ensure album", a.path, err)
	}
	return nil
}

// ListFiles returns the regular files in the album directory.
func (a *Album) ListFiles() ([]string, error) {
	if err := a.Ensure(); err != nil {
		return nil, err
	}
	names, err := a.fs.ListRegularFiles(a.path)
	if err != nil {
		return nil, err
	}
	if a.order != SortNative {
		sort.Strings(names)
	}
	return names, nil
}

// Len returns the current file count.
func (a *Album) Len() int {
	names, err := a.ListFiles()
	if err != nil {
		return 0
	}
	return len(names)
}

// CurrentFile returns the file under the cursor.
// A cursor left beyond the listing by external deletion is clamped to the
// last file.
func (a *Album) CurrentFile() (domain.MediaFile, error) {
	names, err := a.ListFiles()
	if err != nil {
		return domain.MediaFile{}, domain.NewError(domain.KindEmptyAlbum, "current file", a.path, err)
	}
	if len(names) == 0 {
		return domain.MediaFile{}, domain.NewError(domain.KindEmptyAlbum, "current file", a.path, nil)
	}
	a.clamp(len(names))
	return domain.NewMediaFile(filepath.Join(a.path, names[a.position])), nil
}

// Scroll moves the cursor one step with wraparound. On an empty album the
// cursor stays at 0.
func (a *Album) Scroll(dir domain.Direction) {
	names, err := a.ListFiles()
	if err != nil {
		a.logger.Warn("failed to list album",
			zap.String("path", a.path),
			zap.Error(err))
	}
	count := len(names)
	if count == 0 {
		a.position = 0
		return
	}
	a.clamp(count)

	switch dir {
	case domain.DirectionReverse:
		a.position = (a.position - 1 + count) % count
	default:
		a.position = (a.position + 1) % count
	}

	a.logger.Debug("album scrolled",
		zap.String("identity", a.identity),
		zap.String("direction", dir.String()),
		zap.Int("position", a.position),
		zap.Int("count", count))
}

// SetPosition places the cursor. Out-of-range values are clamped on next use.
func (a *Album) SetPosition(position int) {
	if position < 0 {
		position = 0
	}
	a.position = position
}

func (a *Album) clamp(count int) {
	if a.position < count {
		return
	}
	a.logger.Warn("stale album cursor, clamping",
		zap.String("identity", a.identity),
		zap.Int("position", a.position),
		zap.Int("count", count),
		zap.Error(domain.ErrStaleCursor))
	a.position = count - 1
}
