package infra

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// AlbumWatcher implements domain.AlbumWatcher with fsnotify.
// Exactly one album directory is watched at a time.
type AlbumWatcher struct {
	fsWatcher *fsnotify.Watcher
	changes   chan string
	done      chan struct{}
	mu        sync.Mutex
	dir       string
	closed    bool
	logger    *zap.Logger
}

// NewAlbumWatcher starts an fsnotify watcher with no directory.
func NewAlbumWatcher(logger *zap.Logger) (*AlbumWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &AlbumWatcher{
		fsWatcher: fsWatcher,
		changes:   make(chan string, 32),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go w.loop()
	return w, nil
}

// Watch replaces the watched directory.
func (w *AlbumWatcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher closed")
	}
	if dir == w.dir {
		return nil
	}
	if w.dir != "" {
		if err := w.fsWatcher.Remove(w.dir); err != nil {
			w.logger.Debug("failed to unwatch album", zap.String("dir", w.dir), zap.Error(err))
		}
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		w.dir = ""
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dir = dir
	w.logger.Debug("watching album", zap.String("dir", dir))
	return nil
}

// Changes delivers paths of created, removed or renamed files.
func (w *AlbumWatcher) Changes() <-chan string {
	return w.changes
}

// Close stops the watcher. Changes is not closed so pending readers
// simply stop receiving.
func (w *AlbumWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *AlbumWatcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !event.Has(fsnotify.Create) {
				w.forget(event.Name)
			}
			// Send non-blockingly so a stalled loop never wedges fsnotify.
			select {
			case w.changes <- event.Name:
			default:
				w.logger.Debug("album change dropped", zap.String("path", event.Name))
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("album watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// forget drops the watched directory when it was itself removed or renamed,
// so a later Watch of the same path adds it again.
func (w *AlbumWatcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if path == w.dir {
		w.logger.Debug("album directory gone, watch dropped", zap.String("dir", path))
		w.dir = ""
	}
}

// Ensure AlbumWatcher implements domain.AlbumWatcher.
var _ domain.AlbumWatcher = (*AlbumWatcher)(nil)
