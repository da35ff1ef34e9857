// Package infra implements infrastructure concerns (filesystem, state, storage).
package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// AlbumFS implements domain.FileSystem on the local disk.
type AlbumFS struct {
	homeDir string
	scratch []byte
}

// NewAlbumFS creates a filesystem adapter.
func NewAlbumFS() domain.FileSystem {
	home, _ := os.UserHomeDir()
	return &AlbumFS{homeDir: home, scratch: make([]byte, godirwalk.MinimumScratchBufferSize)}
}

// NewAlbumFSWithHome creates a filesystem adapter with custom home (for testing).
func NewAlbumFSWithHome(home string) domain.FileSystem {
	return &AlbumFS{homeDir: home, scratch: make([]byte, godirwalk.MinimumScratchBufferSize)}
}

// ListRegularFiles returns regular file names in directory enumeration order.
// Hidden files are skipped so partial writes and OS metadata never show up
// in the gallery.
func (fs *AlbumFS) ListRegularFiles(dir string) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(fs.ExpandHome(dir), fs.scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(dirents))
	for _, de := range dirents {
		if !de.IsRegular() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		names = append(names, de.Name())
	}
	return names, nil
}

// EnsureDir creates path and any parents. Existing directories are fine.
func (fs *AlbumFS) EnsureDir(path string) error {
	return os.MkdirAll(fs.ExpandHome(path), 0755)
}

// Exists checks if a path exists.
func (fs *AlbumFS) Exists(path string) bool {
	_, err := os.Stat(fs.ExpandHome(path))
	return err == nil
}

// WriteNew writes data to a new file. It fails with fs.ErrExist rather than
// overwrite. A failed write removes the partial file.
func (fs *AlbumFS) WriteNew(path string, data []byte) error {
	expanded := fs.ExpandHome(path)
	f, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(expanded) // Clean up on failure
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(expanded)
		return err
	}
	return f.Close()
}

// ExpandHome expands ~ to the user's home directory.
func (fs *AlbumFS) ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(fs.homeDir, path[2:])
	}
	if path == "~" {
		return fs.homeDir
	}
	return path
}

// ListAlbums returns the identity directories under baseDir in name order.
// A missing base directory has no albums.
func ListAlbums(baseDir string) ([]string, error) {
	dirents, err := godirwalk.ReadDirents(baseDir, nil)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", baseDir, err)
	}

	var identities []string
	for _, de := range dirents {
		if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
			identities = append(identities, de.Name())
		}
	}
	sort.Strings(identities)
	return identities, nil
}

// Ensure AlbumFS implements domain.FileSystem.
var _ domain.FileSystem = (*AlbumFS)(nil)
