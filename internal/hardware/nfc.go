package hardware

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/host/v3"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// NFCOptions configures the MFRC522 reader.
type NFCOptions struct {
	SPIPort     string // "" opens the first registered port
	ResetPin    string
	IRQPin      string
	AbsentAfter int // consecutive empty reads before the tag counts as removed
}

const nfcReadTimeout = 200 * time.Millisecond

type uidReader interface {
	ReadUID(timeout time.Duration) ([]byte, error)
	Halt() error
}

// NFCReader polls an MFRC522 in the background and reports the card on it.
// A card is reported absent only after AbsentAfter consecutive empty reads,
// so a card resting on the reader does not flicker between albums.
type NFCReader struct {
	dev         uidReader
	port        spi.PortCloser
	absentAfter int
	timeout     time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	current string
	misses  int

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewNFCReader opens the SPI port and the reader chip.
func NewNFCReader(opts NFCOptions, logger *zap.Logger) (*NFCReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "nfc host init", "", err)
	}
	port, err := spireg.Open(opts.SPIPort)
	if err != nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "nfc open spi", opts.SPIPort, err)
	}
	reset := gpioreg.ByName(opts.ResetPin)
	irq := gpioreg.ByName(opts.IRQPin)
	if reset == nil || irq == nil {
		port.Close()
		return nil, domain.NewError(domain.KindDeviceUnavailable, "nfc pins", opts.ResetPin+","+opts.IRQPin, fmt.Errorf("pin not found"))
	}

	dev, err := mfrc522.NewSPI(port, reset, irq)
	if err != nil {
		port.Close()
		return nil, domain.NewError(domain.KindDeviceUnavailable, "nfc init", opts.SPIPort, err)
	}

	r := newNFCReader(dev, opts.AbsentAfter, nfcReadTimeout, logger)
	r.port = port
	r.start()
	logger.Info("nfc reader ready", zap.String("spi", port.String()))
	return r, nil
}

func newNFCReader(dev uidReader, absentAfter int, timeout time.Duration, logger *zap.Logger) *NFCReader {
	if absentAfter < 1 {
		absentAfter = 1
	}
	return &NFCReader{
		dev:         dev,
		absentAfter: absentAfter,
		timeout:     timeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

func (r *NFCReader) start() {
	r.wg.Add(1)
	go r.loop()
}

func (r *NFCReader) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		default:
		}
		uid, err := r.dev.ReadUID(r.timeout)
		r.observe(uid, err)
	}
}

// observe folds one read result into the presence state.
func (r *NFCReader) observe(uid []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil || len(uid) == 0 {
		r.misses++
		if r.current != "" && r.misses >= r.absentAfter {
			r.logger.Info("nfc tag removed", zap.String("tag", r.current))
			r.current = ""
		}
		return
	}

	r.misses = 0
	id := strings.ToUpper(hex.EncodeToString(uid))
	if id != r.current {
		r.logger.Info("nfc tag detected", zap.String("tag", id))
		r.current = id
	}
}

// PollTag returns the id of the card currently on the reader.
func (r *NFCReader) PollTag() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.current != ""
}

// Close stops polling and powers the reader down.
func (r *NFCReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
		err = r.dev.Halt()
		if r.port != nil {
			if cerr := r.port.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Ensure NFCReader implements domain.TagReader.
var _ domain.TagReader = (*NFCReader)(nil)
