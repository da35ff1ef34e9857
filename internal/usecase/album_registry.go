package usecase

import (
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// RegistryOptions configures an AlbumRegistry.
type RegistryOptions struct {
	Sort SortOrder

	// Cursors persists album cursors across activations. Only used when
	// ResumePosition is set.
	Cursors        domain.CursorStore
	ResumePosition bool
}

// AlbumRegistry owns the album directory lifecycle and the active identity.
type AlbumRegistry struct {
	fs      domain.FileSystem
	baseDir string
	opts    RegistryOptions
	album   *Album
	logger  *zap.Logger
}

// NewAlbumRegistry creates a registry rooted at baseDir. No album is active
// until the first Activate.
func NewAlbumRegistry(fs domain.FileSystem, baseDir string, opts RegistryOptions, logger *zap.Logger) *AlbumRegistry {
	if opts.Sort == "" {
		opts.Sort = SortName
	}
	return &AlbumRegistry{
		fs:      fs,
		baseDir: fs.ExpandHome(baseDir),
		opts:    opts,
		logger:  logger,
	}
}

// Activate makes identity the current album, creating its directory if
// needed. The cursor starts at 0 unless cursor resume is enabled.
//
// If the album directory cannot be created the registry falls back to the
// default album and still returns the error. When the default album itself
// fails the previous album stays active.
func (r *AlbumRegistry) Activate(identity string) error {
	if identity == "" {
		identity = domain.DefaultIdentity
	}

	err := r.activate(identity)
	if err == nil || identity == domain.DefaultIdentity {
		return err
	}

	r.logger.Warn("album activation failed, falling back to default",
		zap.String("identity", identity),
		zap.Error(err))
	if fallbackErr := r.activate(domain.DefaultIdentity); fallbackErr != nil {
		return errors.Join(err, fallbackErr)
	}
	return err
}

// Deactivate switches back to the default album.
func (r *AlbumRegistry) Deactivate() error {
	return r.Activate(domain.DefaultIdentity)
}

// Identity returns the active identity.
func (r *AlbumRegistry) Identity() string {
	if r.album == nil {
		return domain.DefaultIdentity
	}
	return r.album.Identity()
}

// AlbumPath returns the active album directory.
func (r *AlbumRegistry) AlbumPath() string {
	if r.album == nil {
		return filepath.Join(r.baseDir, domain.DefaultIdentity)
	}
	return r.album.Path()
}

// EnsureAlbum returns the active album directory, recreating it if it was
// removed since activation.
func (r *AlbumRegistry) EnsureAlbum() (string, error) {
	if r.album == nil {
		path := r.AlbumPath()
		if err := r.fs.EnsureDir(path); err != nil {
			return "", domain.NewError(domain.KindDirectoryCreate, "ensure album", path, err)
		}
		return path, nil
	}
	if err := r.album.Ensure(); err != nil {
		return "", err
	}
	return r.album.Path(), nil
}

// Album returns the active album, or nil before the first Activate.
func (r *AlbumRegistry) Album() *Album {
	return r.album
}

// Close persists the active cursor when resume is enabled.
func (r *AlbumRegistry) Close() {
	r.saveCursor()
}

func (r *AlbumRegistry) activate(identity string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	albumPath := filepath.Join(r.baseDir, identity)

	if !r.fs.Exists(r.baseDir) {
		r.logger.Warn("base media directory missing, creating",
			zap.String("path", r.baseDir))
	}
	if err := r.fs.EnsureDir(r.baseDir); err != nil {
		return domain.NewError(domain.KindDirectoryCreate, "activate", r.baseDir, err)
	}
	if err := r.fs.EnsureDir(albumPath); err != nil {
		return domain.NewError(domain.KindDirectoryCreate, "activate", albumPath, err)
	}

	r.saveCursor()

	album := NewAlbum(r.fs, identity, albumPath, r.opts.Sort, r.logger)
	if position, ok := r.loadCursor(identity); ok {
		album.SetPosition(position)
	}
	r.album = album

	r.logger.Info("album activated",
		zap.String("identity", identity),
		zap.String("path", albumPath),
		zap.Int("position", album.Position()))
	return nil
}

func (r *AlbumRegistry) saveCursor() {
	if !r.opts.ResumePosition || r.opts.Cursors == nil || r.album == nil {
		return
	}
	if err := r.opts.Cursors.SaveCursor(r.album.Identity(), r.album.Position()); err != nil {
		r.logger.Warn("failed to save album cursor",
			zap.String("identity", r.album.Identity()),
			zap.Error(err))
	}
}

func (r *AlbumRegistry) loadCursor(identity string) (int, bool) {
	if !r.opts.ResumePosition || r.opts.Cursors == nil {
		return 0, false
	}
	position, ok, err := r.opts.Cursors.LoadCursor(identity)
	if err != nil {
		r.logger.Warn("failed to load album cursor",
			zap.String("identity", identity),
			zap.Error(err))
		return 0, false
	}
	return position, ok
}

// validateIdentity rejects ids that would escape the base directory.
func validateIdentity(identity string) error {
	if identity == "." || identity == ".." || strings.ContainsAny(identity, `/\`) || strings.ContainsRune(identity, 0) {
		return domain.NewError(domain.KindDirectoryCreate, "activate", identity, errors.New("invalid identity"))
	}
	return nil
}
