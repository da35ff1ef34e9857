package usecase

import (
	"errors"
	"image"
	"io/fs"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// DefaultRecordingTimeout bounds a video recording session.
const DefaultRecordingTimeout = 5 * time.Second

// maxNameAttempts bounds filename bumps when a capture name already exists.
const maxNameAttempts = 8

// MachineConfig holds state machine settings and optional collaborators.
type MachineConfig struct {
	RecordingTimeout time.Duration
	MinFreeMB        uint64
	Now              func() time.Time

	// Optional. Nil disables the feature.
	Storage domain.StorageMonitor
	Journal domain.CaptureJournal
	Tagger  domain.MediaTagger
}

// Notice is the most recent non-fatal error shown as an inline indicator.
type Notice struct {
	Kind domain.ErrorKind
	At   time.Time
}

// Machine is the application state machine. It is driven from a single
// goroutine: Handle for each input event, then Tick once per loop.
type Machine struct {
	state    domain.AppState
	physical domain.SelectorPosition
	registry *AlbumRegistry
	hw       *HardwareContext
	playback *Playback
	fs       domain.FileSystem
	namer    *CaptureNamer
	config   MachineConfig
	recPath  string
	notice   Notice
	logger   *zap.Logger
}

// NewMachine creates a machine in the initial state. The registry should
// already have an active album and the hardware context an open camera.
func NewMachine(
	registry *AlbumRegistry,
	hw *HardwareContext,
	playback *Playback,
	fsys domain.FileSystem,
	config MachineConfig,
	logger *zap.Logger,
) *Machine {
	if config.RecordingTimeout <= 0 {
		config.RecordingTimeout = DefaultRecordingTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	state := domain.InitialState()
	state.LastInteractionAt = config.Now()
	return &Machine{
		state:    state,
		registry: registry,
		hw:       hw,
		playback: playback,
		fs:       fsys,
		namer:    NewCaptureNamer(config.Now),
		config:   config,
		logger:   logger,
	}
}

// State returns a snapshot of the current state.
func (m *Machine) State() domain.AppState {
	return m.state
}

// Identity returns the active album identity.
func (m *Machine) Identity() string {
	return m.registry.Identity()
}

// Album returns the active album.
func (m *Machine) Album() *Album {
	return m.registry.Album()
}

// Notice returns the latest inline error indicator.
func (m *Machine) Notice() Notice {
	return m.notice
}

// Handle applies one input event.
func (m *Machine) Handle(ev domain.Event) {
	at := ev.At
	if at.IsZero() {
		at = m.config.Now()
	}
	if ev.Interactive() {
		m.state.LastInteractionAt = at
	}

	switch ev.Kind {
	case domain.EventSelector:
		m.observeSelector(ev.Position, at)
	case domain.EventSelectorOverride:
		m.overrideSelector(ev.Position)
	case domain.EventEncoder:
		m.encoderTick(ev.Direction)
	case domain.EventCaptureButton:
		if ev.Button == domain.ButtonPressed {
			m.capturePress(at)
		}
	case domain.EventTagPresent:
		if ev.Identity != "" && ev.Identity != m.registry.Identity() {
			m.switchIdentity(ev.Identity)
		}
	case domain.EventTagAbsent:
		if m.registry.Identity() != domain.DefaultIdentity {
			m.switchIdentity(domain.DefaultIdentity)
		}
	case domain.EventAlbumChanged:
		m.playback.Invalidate(ev.Path)
	case domain.EventTick:
		m.Tick(at)
	}
}

// Tick applies time-based transitions.
func (m *Machine) Tick(now time.Time) {
	if m.state.Recording && now.Sub(m.state.LastCaptureAt) > m.config.RecordingTimeout {
		m.logger.Info("recording timeout reached",
			zap.Duration("timeout", m.config.RecordingTimeout))
		m.stopRecording()
	}
}

// Preview reads a live frame from the active camera.
func (m *Machine) Preview() (image.Image, error) {
	handle, err := m.hw.Handle()
	if err != nil {
		return nil, err
	}
	frame, err := handle.PreviewFrame()
	if err != nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "preview", m.hw.Active().String(), err)
	}
	return frame, nil
}

// GalleryFrame resolves the current album file into a frame.
func (m *Machine) GalleryFrame() (domain.MediaFile, image.Image, error) {
	file, err := m.registry.Album().CurrentFile()
	if err != nil {
		return domain.MediaFile{}, nil, err
	}
	frame, err := m.playback.Resolve(file)
	return file, frame, err
}

// Shutdown finalizes any recording and releases the camera and playback.
func (m *Machine) Shutdown() {
	if m.state.Recording {
		m.stopRecording()
	}
	m.playback.Close()
	m.registry.Close()
	if err := m.hw.Close(); err != nil {
		m.logger.Warn("failed to close camera", zap.Error(err))
	}
}

func (m *Machine) observeSelector(pos domain.SelectorPosition, at time.Time) {
	if !pos.Valid() {
		return
	}
	if m.physical == domain.SelectorNone {
		m.physical = pos
		if m.state.SelectorOverride == domain.SelectorNone {
			m.applySelector(pos, false)
		}
		return
	}
	if pos == m.physical {
		if m.state.SelectorOverride == domain.SelectorNone && !m.state.Recording {
			m.applySelector(pos, false)
		}
		return
	}

	m.physical = pos
	m.state.LastInteractionAt = at
	if m.state.SelectorOverride != domain.SelectorNone {
		m.logger.Info("selector moved, clearing override",
			zap.Int("override", int(m.state.SelectorOverride)))
		m.state.SelectorOverride = domain.SelectorNone
	}
	m.applySelector(pos, true)
}

func (m *Machine) overrideSelector(pos domain.SelectorPosition) {
	if pos == domain.SelectorNone {
		m.state.SelectorOverride = domain.SelectorNone
		if m.physical.Valid() {
			m.applySelector(m.physical, m.physical != m.state.Selector)
		}
		return
	}
	if !pos.Valid() {
		return
	}
	changed := pos != m.state.Selector
	m.state.SelectorOverride = pos
	m.applySelector(pos, changed)
}

// applySelector maps pos onto camera and capture mode. force is set when
// the position changed and pulls the display back to the live view.
func (m *Machine) applySelector(pos domain.SelectorPosition, force bool) {
	cam, mode, ok := pos.Mapping()
	if !ok {
		return
	}
	if m.state.Recording && (force || cam != m.state.ActiveCamera || mode != m.state.CaptureMode) {
		m.stopRecording()
	}

	if cam != m.state.ActiveCamera || m.hw.Active() != cam {
		if err := m.hw.Use(cam); err != nil {
			m.raise(err)
		}
	}
	m.state.ActiveCamera = cam
	m.state.CaptureMode = mode
	m.state.Selector = pos

	if force {
		m.state.DisplayMode = domain.DisplayCapture
		m.logger.Info("selector changed",
			zap.Int("position", int(pos)),
			zap.String("camera", cam.String()),
			zap.String("capture_mode", mode.String()))
	}
}

func (m *Machine) encoderTick(dir domain.Direction) {
	if m.state.Recording {
		return
	}
	if m.state.DisplayMode == domain.DisplayCapture {
		m.state.DisplayMode = domain.DisplayGallery
		m.playback.Reset()
		return
	}
	m.registry.Album().Scroll(dir)
	m.playback.Reset()
}

func (m *Machine) capturePress(at time.Time) {
	if m.state.DisplayMode == domain.DisplayGallery {
		m.state.DisplayMode = domain.DisplayCapture
		m.playback.Reset()
		return
	}
	if m.state.Recording {
		return
	}

	var err error
	switch m.state.CaptureMode {
	case domain.CaptureVideo:
		err = m.startRecording(at)
	default:
		err = m.capturePicture(at)
	}
	if err != nil {
		m.raise(err)
	}
}

func (m *Machine) capturePicture(at time.Time) error {
	dir, err := m.registry.EnsureAlbum()
	if err != nil {
		return err
	}
	if err := m.checkStorage(dir); err != nil {
		return err
	}
	handle, err := m.hw.Handle()
	if err != nil {
		return err
	}
	data, err := handle.CaptureStill()
	if err != nil {
		return domain.NewError(domain.KindDeviceUnavailable, "capture still", m.state.ActiveCamera.String(), err)
	}

	path, err := m.writeCapture(dir, data)
	if err != nil {
		return err
	}
	m.state.LastCaptureAt = at
	m.logger.Info("picture captured",
		zap.String("identity", m.registry.Identity()),
		zap.String("path", path))

	if m.config.Tagger != nil {
		if err := m.config.Tagger.Tag(path, m.registry.Identity()); err != nil {
			m.logger.Warn("failed to tag picture", zap.String("path", path), zap.Error(err))
		}
	}
	m.record(path, domain.MediaImage, at)
	return nil
}

func (m *Machine) writeCapture(dir string, data []byte) (string, error) {
	var err error
	for i := 0; i < maxNameAttempts; i++ {
		path := m.namer.Next(dir, ".jpg")
		err = m.fs.WriteNew(path, data)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if errors.Is(err, syscall.ENOSPC) {
		return "", domain.NewError(domain.KindStorageFull, "write capture", dir, err)
	}
	return "", domain.NewError(domain.KindDirectoryCreate, "write capture", dir, err)
}

func (m *Machine) startRecording(at time.Time) error {
	dir, err := m.registry.EnsureAlbum()
	if err != nil {
		return err
	}
	if err := m.checkStorage(dir); err != nil {
		return err
	}
	handle, err := m.hw.Handle()
	if err != nil {
		return err
	}

	path := m.namer.Next(dir, ".mp4")
	for i := 1; i < maxNameAttempts && m.fs.Exists(path); i++ {
		path = m.namer.Next(dir, ".mp4")
	}
	if err := handle.StartRecording(path); err != nil {
		return domain.NewError(domain.KindDeviceUnavailable, "start recording", path, err)
	}

	m.state.Recording = true
	m.state.LastCaptureAt = at
	m.recPath = path
	m.logger.Info("recording started",
		zap.String("identity", m.registry.Identity()),
		zap.String("path", path))
	return nil
}

func (m *Machine) stopRecording() {
	if handle := m.hw.Current(); handle != nil {
		if err := handle.StopRecording(); err != nil {
			m.logger.Warn("failed to finalize recording",
				zap.String("path", m.recPath),
				zap.Error(err))
		}
	}
	m.state.Recording = false
	m.logger.Info("recording stopped", zap.String("path", m.recPath))
	m.record(m.recPath, domain.MediaVideo, m.state.LastCaptureAt)
	m.recPath = ""
}

func (m *Machine) switchIdentity(identity string) {
	if m.state.Recording {
		m.stopRecording()
	}
	m.playback.Reset()

	var err error
	if identity == domain.DefaultIdentity {
		err = m.registry.Deactivate()
	} else {
		err = m.registry.Activate(identity)
	}
	if err != nil {
		m.raise(err)
	}
}

func (m *Machine) checkStorage(dir string) error {
	if m.config.Storage == nil || m.config.MinFreeMB == 0 {
		return nil
	}
	usage, err := m.config.Storage.Usage(dir)
	if err != nil {
		m.logger.Debug("storage check failed", zap.Error(err))
		return nil
	}
	if usage.FreeMB < m.config.MinFreeMB {
		return domain.NewError(domain.KindStorageFull, "capture", dir, nil)
	}
	return nil
}

func (m *Machine) record(path string, kind domain.MediaKind, at time.Time) {
	if m.config.Journal == nil || path == "" {
		return
	}
	err := m.config.Journal.RecordCapture(domain.Capture{
		Identity:   m.registry.Identity(),
		Path:       path,
		Kind:       kind,
		CapturedAt: at,
	})
	if err != nil {
		m.logger.Warn("failed to journal capture", zap.String("path", path), zap.Error(err))
	}
}

func (m *Machine) raise(err error) {
	m.notice = Notice{Kind: domain.KindOf(err), At: m.config.Now()}
	m.logger.Warn("operation failed",
		zap.String("kind", m.notice.Kind.String()),
		zap.Error(err))
}
