package infra

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

const bytesPerMB = 1024 * 1024

// DiskMonitor implements domain.StorageMonitor using gopsutil.
type DiskMonitor struct {
	usage func(path string) (*disk.UsageStat, error)
}

// NewDiskMonitor creates a storage monitor.
func NewDiskMonitor() *DiskMonitor {
	return &DiskMonitor{usage: disk.Usage}
}

// Usage reports the volume holding path. A path that does not exist yet is
// resolved to its nearest existing parent.
func (m *DiskMonitor) Usage(path string) (domain.DiskStatus, error) {
	stat, err := m.usage(nearestExisting(path))
	if err != nil {
		return domain.DiskStatus{}, err
	}
	return domain.DiskStatus{
		TotalMB:     stat.Total / bytesPerMB,
		FreeMB:      stat.Free / bytesPerMB,
		UsedPercent: stat.UsedPercent,
	}, nil
}

func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// Ensure DiskMonitor implements domain.StorageMonitor.
var _ domain.StorageMonitor = (*DiskMonitor)(nil)
