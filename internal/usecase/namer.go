package usecase

import (
	"path/filepath"
	"time"
)

// captureStampLayout sorts lexicographically in capture order.
const captureStampLayout = "20060102-150405.000000"

// CaptureNamer issues capture filenames that never repeat and never go
// backwards, even when the clock stalls or steps back.
type CaptureNamer struct {
	now  func() time.Time
	last time.Time
}

// NewCaptureNamer creates a namer using now as its clock.
func NewCaptureNamer(now func() time.Time) *CaptureNamer {
	if now == nil {
		now = time.Now
	}
	return &CaptureNamer{now: now}
}

// Next returns dir/<stamp><ext>. Stamps are UTC so local clock shifts such
// as a DST fall-back cannot reorder them.
func (n *CaptureNamer) Next(dir, ext string) string {
	stamp := n.now().UTC().Truncate(time.Microsecond)
	if !n.last.IsZero() && !stamp.After(n.last) {
		stamp = n.last.Add(time.Microsecond)
	}
	n.last = stamp
	return filepath.Join(dir, stamp.Format(captureStampLayout)+ext)
}
