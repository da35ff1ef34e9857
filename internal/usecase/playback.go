package usecase

import (
	"errors"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

const defaultVideoFPS = 30.0

// Playback resolves gallery files into frames. Stills are decoded on each
// call. Videos keep one open stream keyed by path, paced by the stream's
// frame rate, and loop at end of stream.
type Playback struct {
	stills     domain.StillDecoder
	videos     domain.VideoOpener
	width      int
	height     int
	now        func() time.Time
	path       string
	stream     domain.VideoStream
	interval   time.Duration
	frame      image.Image
	frameAt    time.Time
	failedPath string
	failure    error
	logger     *zap.Logger
}

// NewPlayback creates a controller that fits frames to width x height.
func NewPlayback(stills domain.StillDecoder, videos domain.VideoOpener, width, height int, now func() time.Time, logger *zap.Logger) *Playback {
	if now == nil {
		now = time.Now
	}
	return &Playback{
		stills: stills,
		videos: videos,
		width:  width,
		height: height,
		now:    now,
		logger: logger,
	}
}

// Resolve returns the frame to show for file.
// Decode failures come back as codec failures. A file that failed keeps
// failing without retry until Reset or a different file is resolved.
func (p *Playback) Resolve(file domain.MediaFile) (image.Image, error) {
	if file.Path != p.path {
		p.release()
		p.path = file.Path
	}
	if p.failedPath == file.Path {
		return nil, p.failure
	}

	if file.Kind() == domain.MediaImage {
		img, err := p.stills.Decode(file.Path, p.width, p.height)
		if err != nil {
			return nil, p.fail(file.Path, "decode still", err)
		}
		return img, nil
	}
	return p.nextVideoFrame(file.Path)
}

// Active reports whether a video stream is open.
func (p *Playback) Active() bool {
	return p.stream != nil
}

// Reset drops the playback cursor.
func (p *Playback) Reset() {
	p.release()
	p.path = ""
}

// Invalidate drops the playback cursor if it belongs to path.
func (p *Playback) Invalidate(path string) {
	if path == p.path || path == p.failedPath {
		p.Reset()
	}
}

// Close releases any open stream.
func (p *Playback) Close() {
	p.Reset()
}

func (p *Playback) nextVideoFrame(path string) (image.Image, error) {
	if p.stream == nil {
		stream, err := p.videos.Open(path)
		if err != nil {
			return nil, p.fail(path, "open video", err)
		}
		fps := stream.FPS()
		if fps <= 0 {
			fps = defaultVideoFPS
		}
		p.stream = stream
		p.interval = time.Duration(float64(time.Second) / fps)
		p.logger.Debug("video opened",
			zap.String("path", path),
			zap.Float64("fps", fps))
	}

	now := p.now()
	if p.frame != nil && now.Sub(p.frameAt) < p.interval {
		return p.frame, nil
	}

	frame, err := p.stream.ReadFrame()
	if errors.Is(err, io.EOF) {
		if err = p.stream.Rewind(); err == nil {
			frame, err = p.stream.ReadFrame()
		}
	}
	if err != nil {
		return nil, p.fail(path, "read video frame", err)
	}

	p.frame = frame
	p.frameAt = now
	return frame, nil
}

func (p *Playback) fail(path, op string, err error) error {
	p.release()
	p.failedPath = path
	p.failure = domain.NewError(domain.KindCodecFailure, op, path, err)
	p.logger.Warn("gallery playback failed",
		zap.String("path", path),
		zap.Error(err))
	return p.failure
}

func (p *Playback) release() {
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			p.logger.Debug("failed to close video", zap.Error(err))
		}
	}
	p.stream = nil
	p.frame = nil
	p.frameAt = time.Time{}
	p.failedPath = ""
	p.failure = nil
}
