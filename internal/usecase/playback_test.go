package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

func newTestPlayback(stills *mockStillDecoder, videos *mockVideoOpener, clock *fakeClock) *Playback {
	return NewPlayback(stills, videos, 320, 240, clock.Now, zap.NewNop())
}

// TestPlayback_Classify verifies extension classification
func TestPlayback_Classify(t *testing.T) {
	tests := []struct {
		path string
		want domain.MediaKind
	}{
		{"a.jpg", domain.MediaImage},
		{"a.PNG", domain.MediaImage},
		{"a.mp4", domain.MediaVideo},
		{"a.MOV", domain.MediaVideo},
		{"noext", domain.MediaImage},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.NewMediaFile(tt.path).Kind())
		})
	}
}

// TestPlayback_Still verifies stills decode without opening streams
func TestPlayback_Still(t *testing.T) {
	stills := &mockStillDecoder{}
	videos := &mockVideoOpener{frames: 3, fps: 10}
	pb := newTestPlayback(stills, videos, newFakeClock())

	frame, err := pb.Resolve(domain.NewMediaFile("a.jpg"))
	require.NoError(t, err)
	assert.NotNil(t, frame)
	assert.Equal(t, []string{"a.jpg"}, stills.decoded)
	assert.Empty(t, videos.opened)
	assert.False(t, pb.Active())
}

// TestPlayback_VideoLoops verifies frames advance per interval and wrap at EOF
func TestPlayback_VideoLoops(t *testing.T) {
	clock := newFakeClock()
	videos := &mockVideoOpener{frames: 3, fps: 10}
	pb := newTestPlayback(&mockStillDecoder{}, videos, clock)
	file := domain.NewMediaFile("c.mp4")

	var widths []int
	for i := 0; i < 7; i++ {
		frame, err := pb.Resolve(file)
		require.NoError(t, err)
		widths = append(widths, frame.Bounds().Dx())
		clock.Advance(100 * time.Millisecond)
	}

	assert.Equal(t, []int{1, 2, 3, 1, 2, 3, 1}, widths)
	require.Len(t, videos.streams, 1)
	assert.Equal(t, 2, videos.streams[0].rewinds)
	assert.True(t, pb.Active())
}

// TestPlayback_VideoPacing verifies fast ticks repeat the current frame
func TestPlayback_VideoPacing(t *testing.T) {
	clock := newFakeClock()
	videos := &mockVideoOpener{frames: 5, fps: 10}
	pb := newTestPlayback(&mockStillDecoder{}, videos, clock)
	file := domain.NewMediaFile("c.mp4")

	first, err := pb.Resolve(file)
	require.NoError(t, err)
	clock.Advance(30 * time.Millisecond)
	again, err := pb.Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	clock.Advance(70 * time.Millisecond)
	next, err := pb.Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Bounds().Dx())
}

// TestPlayback_PathChangeReleases verifies a new file closes the old stream
func TestPlayback_PathChangeReleases(t *testing.T) {
	videos := &mockVideoOpener{frames: 3, fps: 10}
	pb := newTestPlayback(&mockStillDecoder{}, videos, newFakeClock())

	_, err := pb.Resolve(domain.NewMediaFile("a.mp4"))
	require.NoError(t, err)
	_, err = pb.Resolve(domain.NewMediaFile("b.jpg"))
	require.NoError(t, err)

	require.Len(t, videos.streams, 1)
	assert.True(t, videos.streams[0].closed)
	assert.False(t, pb.Active())

	_, err = pb.Resolve(domain.NewMediaFile("a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp4", "a.mp4"}, videos.opened)
}

// TestPlayback_ResetAndInvalidate verifies the cursor is dropped
func TestPlayback_ResetAndInvalidate(t *testing.T) {
	videos := &mockVideoOpener{frames: 3, fps: 10}
	pb := newTestPlayback(&mockStillDecoder{}, videos, newFakeClock())

	_, err := pb.Resolve(domain.NewMediaFile("a.mp4"))
	require.NoError(t, err)
	pb.Invalidate("other.mp4")
	assert.True(t, pb.Active())

	pb.Invalidate("a.mp4")
	assert.False(t, pb.Active())
	assert.True(t, videos.streams[0].closed)

	_, err = pb.Resolve(domain.NewMediaFile("a.mp4"))
	require.NoError(t, err)
	pb.Reset()
	assert.False(t, pb.Active())
}

// TestPlayback_CodecFailure verifies failures are classified and not retried every tick
func TestPlayback_CodecFailure(t *testing.T) {
	videos := &mockVideoOpener{openErr: errBoom}
	pb := newTestPlayback(&mockStillDecoder{}, videos, newFakeClock())
	file := domain.NewMediaFile("bad.mp4")

	_, err := pb.Resolve(file)
	assert.True(t, errors.Is(err, domain.ErrCodecFailure))
	_, err = pb.Resolve(file)
	assert.True(t, errors.Is(err, domain.ErrCodecFailure))
	assert.Len(t, videos.opened, 1)

	pb.Reset()
	_, _ = pb.Resolve(file)
	assert.Len(t, videos.opened, 2)
}

// TestPlayback_MidStreamFailure verifies a read error releases the stream
func TestPlayback_MidStreamFailure(t *testing.T) {
	videos := &mockVideoOpener{frames: 3, fps: 10}
	pb := newTestPlayback(&mockStillDecoder{}, videos, newFakeClock())
	file := domain.NewMediaFile("a.mp4")

	_, err := pb.Resolve(file)
	require.NoError(t, err)
	videos.streams[0].readErr = errBoom
	pb.frame = nil

	_, err = pb.Resolve(file)
	assert.True(t, errors.Is(err, domain.ErrCodecFailure))
	assert.True(t, videos.streams[0].closed)
	assert.False(t, pb.Active())
}

// TestPlayback_StillFailure verifies still decode errors are codec failures
func TestPlayback_StillFailure(t *testing.T) {
	pb := newTestPlayback(&mockStillDecoder{err: errBoom}, &mockVideoOpener{}, newFakeClock())

	_, err := pb.Resolve(domain.NewMediaFile("a.jpg"))
	assert.Equal(t, domain.KindCodecFailure, domain.KindOf(err))
}

// TestPlayback_DefaultFPS verifies unknown frame rates fall back to 30fps
func TestPlayback_DefaultFPS(t *testing.T) {
	videos := &mockVideoOpener{frames: 3}
	pb := newTestPlayback(&mockStillDecoder{}, videos, newFakeClock())

	_, err := pb.Resolve(domain.NewMediaFile("a.mp4"))
	require.NoError(t, err)
	fps := defaultVideoFPS
	assert.Equal(t, time.Duration(float64(time.Second)/fps), pb.interval)
}
