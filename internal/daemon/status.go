package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// StatusConfig holds status reporter configuration.
type StatusConfig struct {
	PublishInterval   time.Duration // How often to push the latest snapshot
	HeartbeatInterval time.Duration // How often to log a status line
	MediaDir          string        // Volume whose free space is reported
}

// DefaultStatusConfig returns default status reporter configuration.
func DefaultStatusConfig() StatusConfig {
	return StatusConfig{
		PublishInterval:   5 * time.Second,
		HeartbeatInterval: 5 * time.Minute,
	}
}

// StatusReporter publishes device status off the tick loop, so slow
// publishers (BLE notifications) never stall rendering.
type StatusReporter struct {
	config     StatusConfig
	storage    domain.StorageMonitor // optional
	publishers []domain.StatusPublisher
	logger     *zap.Logger

	mu     sync.Mutex
	latest domain.Status
	ready  bool
}

// NewStatusReporter creates a reporter.
func NewStatusReporter(
	config StatusConfig,
	storage domain.StorageMonitor,
	publishers []domain.StatusPublisher,
	logger *zap.Logger,
) *StatusReporter {
	if config.PublishInterval <= 0 {
		config.PublishInterval = DefaultStatusConfig().PublishInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultStatusConfig().HeartbeatInterval
	}
	return &StatusReporter{
		config:     config,
		storage:    storage,
		publishers: publishers,
		logger:     logger,
	}
}

// Update stores the latest snapshot from the loop.
func (s *StatusReporter) Update(st domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = st
	s.ready = true
}

// Latest returns the most recent snapshot with disk usage filled in.
func (s *StatusReporter) Latest() (domain.Status, bool) {
	s.mu.Lock()
	st, ok := s.latest, s.ready
	s.mu.Unlock()

	if ok && s.storage != nil && s.config.MediaDir != "" {
		if disk, err := s.storage.Usage(s.config.MediaDir); err == nil {
			st.Disk = disk
		} else {
			s.logger.Debug("disk usage unavailable", zap.Error(err))
		}
	}
	return st, ok
}

// Run starts the reporter loop.
// This blocks until context is canceled.
func (s *StatusReporter) Run(ctx context.Context) error {
	s.logger.Info("status reporter started", zap.Int("publishers", len(s.publishers)))

	publishTicker := time.NewTicker(s.config.PublishInterval)
	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)

	defer func() {
		publishTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status reporter stopping")
			return ctx.Err()

		case <-publishTicker.C:
			s.publish(ctx)

		case <-heartbeatTicker.C:
			s.heartbeat()
		}
	}
}

func (s *StatusReporter) publish(ctx context.Context) {
	st, ok := s.Latest()
	if !ok {
		return
	}
	for _, p := range s.publishers {
		p.Publish(ctx, st)
	}
}

func (s *StatusReporter) heartbeat() {
	st, ok := s.Latest()
	if !ok {
		s.logger.Debug("no status yet")
		return
	}
	s.logger.Info("status",
		zap.String("display_mode", st.DisplayMode),
		zap.String("camera", st.Camera),
		zap.String("capture_mode", st.CaptureMode),
		zap.Bool("recording", st.Recording),
		zap.String("identity", st.Identity),
		zap.Int("album_size", st.AlbumSize),
		zap.Uint64("free_mb", st.Disk.FreeMB))
}
