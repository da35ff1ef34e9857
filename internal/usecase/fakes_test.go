package usecase

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// memFS implements domain.FileSystem in memory for testing.
// Files are kept per directory in insertion order.
type memFS struct {
	dirs      map[string]bool
	files     map[string][]string
	data      map[string][]byte
	ensureErr map[string]error
	writeErr  error
}

func newMemFS() *memFS {
	return &memFS{
		dirs:      make(map[string]bool),
		files:     make(map[string][]string),
		data:      make(map[string][]byte),
		ensureErr: make(map[string]error),
	}
}

func (m *memFS) addFiles(dir string, names ...string) {
	m.dirs[dir] = true
	m.files[dir] = append(m.files[dir], names...)
}

func (m *memFS) removeFile(dir, name string) {
	kept := m.files[dir][:0]
	for _, n := range m.files[dir] {
		if n != name {
			kept = append(kept, n)
		}
	}
	m.files[dir] = kept
}

func (m *memFS) removeDir(dir string) {
	delete(m.dirs, dir)
	delete(m.files, dir)
	for path := range m.data {
		if filepath.Dir(path) == dir {
			delete(m.data, path)
		}
	}
}

func (m *memFS) ListRegularFiles(dir string) ([]string, error) {
	if !m.dirs[dir] {
		return nil, fs.ErrNotExist
	}
	out := make([]string, len(m.files[dir]))
	copy(out, m.files[dir])
	return out, nil
}

func (m *memFS) EnsureDir(path string) error {
	if err := m.ensureErr[path]; err != nil {
		return err
	}
	m.dirs[path] = true
	return nil
}

func (m *memFS) Exists(path string) bool {
	if m.dirs[path] {
		return true
	}
	_, ok := m.data[path]
	return ok
}

func (m *memFS) WriteNew(path string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.data[path]; ok {
		return fs.ErrExist
	}
	m.data[path] = data
	dir := filepath.Dir(path)
	m.addFiles(dir, filepath.Base(path))
	return nil
}

func (m *memFS) ExpandHome(path string) string {
	return path // No expansion in tests
}

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

// callLog records collaborator calls in order.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// mockCameraDriver implements domain.CameraDriver for testing.
type mockCameraDriver struct {
	log     *callLog
	openErr map[domain.Camera]error
	opens   int
	open    int // handles currently open
	maxOpen int
	last    *mockCameraHandle
}

func newMockCameraDriver() *mockCameraDriver {
	return &mockCameraDriver{log: &callLog{}, openErr: make(map[domain.Camera]error)}
}

func (d *mockCameraDriver) Open(cam domain.Camera) (domain.CameraHandle, error) {
	d.opens++
	d.log.add("open %s", cam)
	if err := d.openErr[cam]; err != nil {
		return nil, err
	}
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.last = &mockCameraHandle{driver: d, cam: cam}
	return d.last, nil
}

// mockCameraHandle implements domain.CameraHandle for testing.
type mockCameraHandle struct {
	driver     *mockCameraDriver
	cam        domain.Camera
	closed     bool
	recording  string
	stopped    []string
	stillErr   error
	previewErr error
	startErr   error
}

func (h *mockCameraHandle) Camera() domain.Camera { return h.cam }

func (h *mockCameraHandle) PreviewFrame() (image.Image, error) {
	if h.previewErr != nil {
		return nil, h.previewErr
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (h *mockCameraHandle) CaptureStill() ([]byte, error) {
	if h.stillErr != nil {
		return nil, h.stillErr
	}
	return []byte("jpeg"), nil
}

func (h *mockCameraHandle) StartRecording(outPath string) error {
	if h.startErr != nil {
		return h.startErr
	}
	h.recording = outPath
	h.driver.log.add("start %s", filepath.Base(outPath))
	return nil
}

func (h *mockCameraHandle) StopRecording() error {
	h.stopped = append(h.stopped, h.recording)
	h.driver.log.add("stop %s", filepath.Base(h.recording))
	h.recording = ""
	return nil
}

func (h *mockCameraHandle) Close() error {
	if !h.closed {
		h.closed = true
		h.driver.open--
		h.driver.log.add("close %s", h.cam)
	}
	return nil
}

// mockStillDecoder implements domain.StillDecoder for testing.
type mockStillDecoder struct {
	decoded []string
	err     error
}

func (d *mockStillDecoder) Decode(path string, width, height int) (image.Image, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.decoded = append(d.decoded, path)
	return image.NewUniform(color.White), nil
}

// mockVideoOpener implements domain.VideoOpener for testing.
type mockVideoOpener struct {
	frames  int
	fps     float64
	openErr error
	opened  []string
	streams []*mockVideoStream
}

func (o *mockVideoOpener) Open(path string) (domain.VideoStream, error) {
	o.opened = append(o.opened, path)
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := &mockVideoStream{frames: o.frames, fps: o.fps}
	o.streams = append(o.streams, s)
	return s, nil
}

// mockVideoStream yields frames whose Bounds width encodes the frame index.
type mockVideoStream struct {
	frames  int
	pos     int
	fps     float64
	rewinds int
	closed  bool
	readErr error
}

func (s *mockVideoStream) ReadFrame() (image.Image, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.pos >= s.frames {
		return nil, io.EOF
	}
	s.pos++
	return image.NewRGBA(image.Rect(0, 0, s.pos, 1)), nil
}

func (s *mockVideoStream) Rewind() error {
	s.rewinds++
	s.pos = 0
	return nil
}

func (s *mockVideoStream) FPS() float64 { return s.fps }

func (s *mockVideoStream) Close() error {
	s.closed = true
	return nil
}

// mockCursorStore implements domain.CursorStore for testing.
type mockCursorStore struct {
	cursors map[string]int
	loadErr error
}

func (s *mockCursorStore) LoadCursor(identity string) (int, bool, error) {
	if s.loadErr != nil {
		return 0, false, s.loadErr
	}
	p, ok := s.cursors[identity]
	return p, ok, nil
}

func (s *mockCursorStore) SaveCursor(identity string, position int) error {
	if s.cursors == nil {
		s.cursors = make(map[string]int)
	}
	s.cursors[identity] = position
	return nil
}

// mockJournal implements domain.CaptureJournal for testing.
type mockJournal struct {
	captures []domain.Capture
}

func (j *mockJournal) RecordCapture(c domain.Capture) error {
	j.captures = append(j.captures, c)
	return nil
}

func (j *mockJournal) LastCapture(identity string) (*domain.Capture, error) {
	for i := len(j.captures) - 1; i >= 0; i-- {
		if j.captures[i].Identity == identity {
			c := j.captures[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (j *mockJournal) CountCaptures(identity string) (int, error) {
	n := 0
	for _, c := range j.captures {
		if c.Identity == identity {
			n++
		}
	}
	return n, nil
}

// mockStorage implements domain.StorageMonitor for testing.
type mockStorage struct {
	freeMB uint64
	err    error
}

func (s *mockStorage) Usage(path string) (domain.DiskStatus, error) {
	return domain.DiskStatus{FreeMB: s.freeMB, TotalMB: 1000}, s.err
}

// mockTagger implements domain.MediaTagger for testing.
type mockTagger struct {
	tagged map[string]string
	err    error
}

func (t *mockTagger) Tag(path, identity string) error {
	if t.err != nil {
		return t.err
	}
	if t.tagged == nil {
		t.tagged = make(map[string]string)
	}
	t.tagged[path] = identity
	return nil
}

var errBoom = errors.New("boom")
