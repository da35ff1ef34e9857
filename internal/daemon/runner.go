// Package daemon runs the appliance loop: poll inputs, update the state
// machine, render, present.
package daemon

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/display"
	"github.com/eliteGoblin/kidcam/internal/domain"
	"github.com/eliteGoblin/kidcam/internal/media"
	"github.com/eliteGoblin/kidcam/internal/usecase"
)

// maxEncoderSteps bounds how many queued encoder steps one tick consumes.
const maxEncoderSteps = 16

// RunnerConfig holds runner loop configuration.
type RunnerConfig struct {
	Tick           time.Duration // Loop period (default 33ms)
	StatusInterval time.Duration // How often to hand a status snapshot to the reporter
	IdleTimeout    time.Duration // Blank the screen after this long without interaction (0 = never)
	NoticeDuration time.Duration // How long an error indicator stays on screen
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Tick:           33 * time.Millisecond,
		StatusInterval: 2 * time.Second,
		IdleTimeout:    0,
		NoticeDuration: 3 * time.Second,
	}
}

// Runner drives the state machine from a single goroutine.
type Runner struct {
	config  RunnerConfig
	machine *usecase.Machine
	input   domain.InputSource
	tags    domain.TagReader    // optional
	watcher domain.AlbumWatcher // optional
	screen  domain.Display
	status  *StatusReporter // optional
	now     func() time.Time
	logger  *zap.Logger

	started     time.Time
	lastTag     string
	watching    string
	watchFailed string
	blanked     bool
	lastProblem domain.ErrorKind
}

// NewRunner creates a runner. tags, watcher and status may be nil.
func NewRunner(
	config RunnerConfig,
	machine *usecase.Machine,
	input domain.InputSource,
	tags domain.TagReader,
	watcher domain.AlbumWatcher,
	screen domain.Display,
	status *StatusReporter,
	now func() time.Time,
	logger *zap.Logger,
) *Runner {
	if config.Tick <= 0 {
		config.Tick = DefaultRunnerConfig().Tick
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = DefaultRunnerConfig().StatusInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Runner{
		config:  config,
		machine: machine,
		input:   input,
		tags:    tags,
		watcher: watcher,
		screen:  screen,
		status:  status,
		now:     now,
		logger:  logger,
		started: now(),
	}
}

// Run starts the loop. It blocks until ctx is canceled, then finalizes any
// recording and releases every device.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started",
		zap.String("identity", r.machine.Identity()),
		zap.Duration("tick", r.config.Tick))

	defer r.shutdown()

	r.Step(r.now())

	tickTicker := time.NewTicker(r.config.Tick)
	statusTicker := time.NewTicker(r.config.StatusInterval)
	defer func() {
		tickTicker.Stop()
		statusTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping")
			return ctx.Err()

		case <-tickTicker.C:
			r.Step(r.now())

		case <-statusTicker.C:
			r.publishStatus()
		}
	}
}

// Step runs one loop iteration at now.
func (r *Runner) Step(now time.Time) {
	for _, ev := range r.collect(now) {
		r.machine.Handle(ev)
	}
	r.machine.Handle(domain.Event{Kind: domain.EventTick, At: now})

	r.followAlbum()
	r.render(now)
}

// collect polls every source into the ordered event queue for one tick.
func (r *Runner) collect(now time.Time) []domain.Event {
	events := make([]domain.Event, 0, 4)

	if pos := r.input.PollSelector(); pos.Valid() {
		events = append(events, domain.Event{Kind: domain.EventSelector, At: now, Position: pos})
	}
	for {
		pos, ok := r.input.PollOverride()
		if !ok {
			break
		}
		events = append(events, domain.Event{Kind: domain.EventSelectorOverride, At: now, Position: pos})
	}
	for i := 0; i < maxEncoderSteps; i++ {
		dir, ok := r.input.PollEncoderTick()
		if !ok {
			break
		}
		events = append(events, domain.Event{Kind: domain.EventEncoder, At: now, Direction: dir})
	}
	if r.input.PollCaptureButton() == domain.ButtonPressed {
		events = append(events, domain.Event{Kind: domain.EventCaptureButton, At: now, Button: domain.ButtonPressed})
	}

	if r.tags != nil {
		id, ok := r.tags.PollTag()
		switch {
		case ok && id != r.lastTag:
			events = append(events, domain.Event{Kind: domain.EventTagPresent, At: now, Identity: id})
			r.lastTag = id
		case !ok && r.lastTag != "":
			events = append(events, domain.Event{Kind: domain.EventTagAbsent, At: now})
			r.lastTag = ""
		}
	}

	if r.watcher != nil {
	drain:
		for {
			select {
			case path := <-r.watcher.Changes():
				if path == r.watching {
					// The album directory itself went away; watch it again once it is back.
					r.watching = ""
				}
				events = append(events, domain.Event{Kind: domain.EventAlbumChanged, At: now, Path: path})
			default:
				break drain
			}
		}
	}
	return events
}

// followAlbum points the watcher at the active album after identity changes.
func (r *Runner) followAlbum() {
	if r.watcher == nil {
		return
	}
	path := r.machine.Album().Path()
	if path == r.watching {
		return
	}
	if err := r.watcher.Watch(path); err != nil {
		if path != r.watchFailed {
			r.logger.Warn("failed to watch album, retrying", zap.String("path", path), zap.Error(err))
			r.watchFailed = path
		}
		return
	}
	r.watching = path
	r.watchFailed = ""
}

// render draws the live preview or the current gallery file, or a
// placeholder when there is nothing to show.
func (r *Runner) render(now time.Time) {
	state := r.machine.State()

	if r.idle(state, now) {
		if !r.blanked {
			r.logger.Debug("display idle, blanking")
			if err := r.screen.Clear(display.Background); err != nil {
				r.logger.Warn("failed to clear display", zap.Error(err))
			}
			r.blanked = true
		}
		return
	}
	r.blanked = false

	width, height := r.screen.Size()

	var frame image.Image
	var err error
	if state.DisplayMode == domain.DisplayCapture {
		frame, err = r.machine.Preview()
	} else {
		_, frame, err = r.machine.GalleryFrame()
	}

	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindUnknown {
			kind = domain.KindCodecFailure
		}
		if kind != r.lastProblem {
			r.logger.Info("showing placeholder",
				zap.String("display_mode", state.DisplayMode.String()),
				zap.String("reason", kind.String()),
				zap.Error(err))
		}
		r.lastProblem = kind
		frame = display.Placeholder(kind, width, height)
	} else {
		r.lastProblem = domain.KindUnknown
		frame = media.Fit(frame, width, height)
	}

	notice := r.machine.Notice()
	badge := domain.KindUnknown
	if notice.Kind != domain.KindUnknown && now.Sub(notice.At) < r.config.NoticeDuration {
		badge = notice.Kind
	}
	frame = display.Decorate(frame, state.Recording, badge)

	if err := r.screen.Present(frame); err != nil {
		r.logger.Warn("failed to present frame", zap.Error(err))
	}
}

func (r *Runner) idle(state domain.AppState, now time.Time) bool {
	if r.config.IdleTimeout <= 0 || state.Recording {
		return false
	}
	last := state.LastInteractionAt
	if last.IsZero() {
		last = r.started
	}
	return now.Sub(last) > r.config.IdleTimeout
}

// Snapshot returns the status as seen by the loop. Disk usage is filled in
// by the reporter.
func (r *Runner) Snapshot() domain.Status {
	state := r.machine.State()
	return domain.Status{
		DisplayMode: state.DisplayMode.String(),
		Camera:      state.ActiveCamera.String(),
		CaptureMode: state.CaptureMode.String(),
		Recording:   state.Recording,
		Identity:    r.machine.Identity(),
		AlbumSize:   r.machine.Album().Len(),
	}
}

func (r *Runner) publishStatus() {
	if r.status == nil {
		return
	}
	r.status.Update(r.Snapshot())
}

// shutdown stops any recording and releases every device.
func (r *Runner) shutdown() {
	r.machine.Shutdown()

	if err := r.input.Close(); err != nil {
		r.logger.Warn("failed to close input", zap.Error(err))
	}
	if r.tags != nil {
		if err := r.tags.Close(); err != nil {
			r.logger.Warn("failed to close tag reader", zap.Error(err))
		}
	}
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Warn("failed to close album watcher", zap.Error(err))
		}
	}
	if err := r.screen.Clear(display.Background); err != nil {
		r.logger.Warn("failed to clear display", zap.Error(err))
	}
	r.logger.Info("runner stopped")
}
