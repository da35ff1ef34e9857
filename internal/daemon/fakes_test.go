package daemon

import (
	"context"
	"image"
	"io"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/display"
	"github.com/eliteGoblin/kidcam/internal/domain"
	"github.com/eliteGoblin/kidcam/internal/hardware"
	"github.com/eliteGoblin/kidcam/internal/infra"
	"github.com/eliteGoblin/kidcam/internal/media"
	"github.com/eliteGoblin/kidcam/internal/usecase"
	"github.com/eliteGoblin/kidcam/test/fixtures"
)

const (
	screenWidth  = 64
	screenHeight = 48
)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedInput is a control panel driven by the test.
type scriptedInput struct {
	selector  domain.SelectorPosition
	encoder   []domain.Direction
	captures  int
	overrides []domain.SelectorPosition
	closed    bool
}

func (s *scriptedInput) PollSelector() domain.SelectorPosition { return s.selector }

func (s *scriptedInput) PollEncoderTick() (domain.Direction, bool) {
	if len(s.encoder) == 0 {
		return 0, false
	}
	dir := s.encoder[0]
	s.encoder = s.encoder[1:]
	return dir, true
}

func (s *scriptedInput) PollCaptureButton() domain.ButtonState {
	if s.captures == 0 {
		return domain.ButtonReleased
	}
	s.captures--
	return domain.ButtonPressed
}

func (s *scriptedInput) PollOverride() (domain.SelectorPosition, bool) {
	if len(s.overrides) == 0 {
		return domain.SelectorNone, false
	}
	pos := s.overrides[0]
	s.overrides = s.overrides[1:]
	return pos, true
}

func (s *scriptedInput) Close() error {
	s.closed = true
	return nil
}

// scriptedTags is a tag reader driven by the test.
type scriptedTags struct {
	id     string
	closed bool
}

func (s *scriptedTags) PollTag() (string, bool) { return s.id, s.id != "" }

func (s *scriptedTags) Close() error {
	s.closed = true
	return nil
}

// fakeWatcher records watched directories and replays injected changes.
type fakeWatcher struct {
	watched  []string
	attempts int
	watchErr error
	changes  chan string
	closed   bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{changes: make(chan string, 8)}
}

func (w *fakeWatcher) Watch(dir string) error {
	w.attempts++
	if w.watchErr != nil {
		return w.watchErr
	}
	w.watched = append(w.watched, dir)
	return nil
}

func (w *fakeWatcher) Changes() <-chan string { return w.changes }

func (w *fakeWatcher) Close() error {
	w.closed = true
	return nil
}

// frameVideos opens every file as a stream of n frames whose width is the
// frame number (1-based).
type frameVideos struct {
	frames int
}

func (v *frameVideos) Open(path string) (domain.VideoStream, error) {
	return &frameStream{total: v.frames}, nil
}

type frameStream struct {
	total int
	next  int
}

func (s *frameStream) ReadFrame() (image.Image, error) {
	if s.next >= s.total {
		return nil, io.EOF
	}
	s.next++
	return image.NewRGBA(image.Rect(0, 0, s.next, 1)), nil
}

func (s *frameStream) Rewind() error {
	s.next = 0
	return nil
}

func (s *frameStream) FPS() float64 { return 30 }
func (s *frameStream) Close() error { return nil }

// recordingPublisher keeps every published status.
type recordingPublisher struct {
	mu       sync.Mutex
	statuses []domain.Status
}

func (p *recordingPublisher) Publish(_ context.Context, st domain.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.statuses)
}

type fixedStorage struct {
	freeMB uint64
}

func (s fixedStorage) Usage(string) (domain.DiskStatus, error) {
	return domain.DiskStatus{TotalMB: 1000, FreeMB: s.freeMB, UsedPercent: 100 - float64(s.freeMB)/10}, nil
}

// appliance wires a runner the way cmd/kidcam does, with a mock camera,
// a headless screen and scripted controls over a real album directory.
type appliance struct {
	baseDir string
	albums  *fixtures.FakeAlbums
	clock   *fakeClock
	camera  *hardware.MockDriver
	input   *scriptedInput
	tags    *scriptedTags
	watcher *fakeWatcher
	screen  *display.Headless
	machine *usecase.Machine
	runner  *Runner
}

type applianceOptions struct {
	idleTimeout time.Duration
	freeMB      uint64
	status      *StatusReporter
}

func newAppliance(baseDir string, opts applianceOptions) (*appliance, error) {
	logger := zap.NewNop()
	a := &appliance{
		baseDir: baseDir,
		albums:  fixtures.NewFakeAlbums(baseDir),
		clock:   newFakeClock(),
		camera:  hardware.NewMockDriver(screenWidth, screenHeight, logger),
		input:   &scriptedInput{},
		tags:    &scriptedTags{},
		watcher: newFakeWatcher(),
		screen:  display.NewHeadless(screenWidth, screenHeight),
	}

	fsys := infra.NewAlbumFSWithHome(filepath.Dir(baseDir))
	registry := usecase.NewAlbumRegistry(fsys, baseDir, usecase.RegistryOptions{Sort: usecase.SortName}, logger)
	if err := registry.Activate(domain.DefaultIdentity); err != nil {
		return nil, err
	}

	hw := usecase.NewHardwareContext(a.camera, usecase.HardwareOptions{
		RetryInitial: time.Second,
		RetryMax:     4 * time.Second,
		Now:          a.clock.Now,
	}, logger)
	if err := hw.Open(domain.CameraSelfie); err != nil {
		return nil, err
	}

	playback := usecase.NewPlayback(media.NewImageDecoder(), &frameVideos{frames: 3}, screenWidth, screenHeight, a.clock.Now, logger)

	freeMB := opts.freeMB
	if freeMB == 0 {
		freeMB = 500
	}
	a.machine = usecase.NewMachine(registry, hw, playback, fsys, usecase.MachineConfig{
		RecordingTimeout: 5 * time.Second,
		MinFreeMB:        100,
		Now:              a.clock.Now,
		Storage:          fixedStorage{freeMB: freeMB},
	}, logger)

	config := DefaultRunnerConfig()
	config.IdleTimeout = opts.idleTimeout
	a.runner = NewRunner(config, a.machine, a.input, a.tags, a.watcher, a.screen, opts.status, a.clock.Now, logger)
	return a, nil
}

// step advances the clock by one tick and runs the loop once.
func (a *appliance) step() {
	a.clock.Advance(33 * time.Millisecond)
	a.runner.Step(a.clock.Now())
}

func (a *appliance) state() domain.AppState {
	return a.machine.State()
}
