package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
)

// Exporter copies albums out of the device, e.g. onto a USB stick.
type Exporter struct {
	baseDir string
}

// NewExporter creates an exporter for albums under baseDir.
func NewExporter(baseDir string) *Exporter {
	return &Exporter{baseDir: baseDir}
}

// Export copies the identity album into destDir/identity and returns the
// number of files copied. Hidden files are skipped and timestamps kept.
func (e *Exporter) Export(identity, destDir string) (int, error) {
	src := filepath.Join(e.baseDir, identity)
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("album %s: %w", identity, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("album %s is not a directory", identity)
	}

	count := 0
	dest := filepath.Join(destDir, identity)
	err = copy.Copy(src, dest, copy.Options{
		PreserveTimes: true,
		Sync:          true,
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Skip
		},
		Skip: func(srcinfo os.FileInfo, src, dest string) (bool, error) {
			if strings.HasPrefix(srcinfo.Name(), ".") {
				return true, nil
			}
			if srcinfo.Mode().IsRegular() {
				count++
			}
			return false, nil
		},
	})
	if err != nil {
		return count, fmt.Errorf("copy: %w", err)
	}
	return count, nil
}
