package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const lockFileName = "kidcam.pid"

// ErrAlreadyRunning is returned when another live process holds the lock.
var ErrAlreadyRunning = errors.New("another kidcam instance is running")

// LockEntry is the JSON content of the pid file.
type LockEntry struct {
	PID       int    `json:"pid"`
	StartedAt int64  `json:"started_at"`
	Version   string `json:"version,omitempty"`
}

// InstanceLock keeps a single kidcam process owning the camera sensors.
// It stores the owner in a JSON pid file; writes are serialized with flock.
type InstanceLock struct {
	path     string
	pidAlive func(pid int32) (bool, error)
}

// NewInstanceLock creates a lock in stateDir.
func NewInstanceLock(stateDir string) *InstanceLock {
	return NewInstanceLockWithPath(filepath.Join(stateDir, lockFileName))
}

// NewInstanceLockWithPath creates a lock at a specific path (for testing).
func NewInstanceLockWithPath(path string) *InstanceLock {
	return &InstanceLock{path: path, pidAlive: process.PidExists}
}

// Path returns the pid file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Acquire records this process as the owner. A stale entry from a dead
// process is replaced.
func (l *InstanceLock) Acquire(version string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	return l.withFlock(func() error {
		entry, err := l.Read()
		if err != nil {
			return err
		}
		if entry != nil && entry.PID != os.Getpid() && l.alive(entry.PID) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, entry.PID)
		}

		return l.atomicWrite(&LockEntry{
			PID:       os.Getpid(),
			StartedAt: time.Now().Unix(),
			Version:   version,
		})
	})
}

// Release removes the pid file if this process owns it.
func (l *InstanceLock) Release() error {
	return l.withFlock(func() error {
		entry, err := l.Read()
		if err != nil || entry == nil || entry.PID != os.Getpid() {
			return err
		}
		return os.Remove(l.path)
	})
}

// Holder returns the live owner, or nil if nobody holds the lock.
func (l *InstanceLock) Holder() (*LockEntry, error) {
	entry, err := l.Read()
	if err != nil || entry == nil {
		return nil, err
	}
	if !l.alive(entry.PID) {
		return nil, nil
	}
	return entry, nil
}

// Read returns the pid file content, or nil if there is none.
func (l *InstanceLock) Read() (*LockEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry LockEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt pid file: treat as unowned.
		return nil, nil
	}
	return &entry, nil
}

func (l *InstanceLock) alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := l.pidAlive(int32(pid))
	return err == nil && ok
}

func (l *InstanceLock) withFlock(fn func() error) error {
	lockFile, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// atomicWrite writes the entry to a temp file and renames it into place.
func (l *InstanceLock) atomicWrite(entry *LockEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", l.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}
