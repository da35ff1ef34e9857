package hardware

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// PinNames names the GPIO lines of the controls, as understood by gpioreg.
type PinNames struct {
	Capture  string
	EncoderA string
	EncoderB string
	Selector []string // positions 1-4
}

// Pins holds resolved GPIO lines. All inputs are active low with pull-ups.
type Pins struct {
	Capture  gpio.PinIn
	EncoderA gpio.PinIn
	EncoderB gpio.PinIn
	Selector [4]gpio.PinIn
}

// edgeWait bounds how long the encoder goroutine blocks before checking for shutdown.
const edgeWait = 100 * time.Millisecond

// GPIOInput reads the physical selector, encoder and capture button.
type GPIOInput struct {
	pins     Pins
	debounce time.Duration
	now      func() time.Time
	logger   *zap.Logger

	pressed   bool
	changedAt time.Time

	ticks chan domain.Direction
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewGPIOInput initializes the host drivers and resolves the named pins.
func NewGPIOInput(names PinNames, debounce time.Duration, logger *zap.Logger) (*GPIOInput, error) {
	if _, err := host.Init(); err != nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "gpio init", "", err)
	}
	if len(names.Selector) != 4 {
		return nil, fmt.Errorf("selector needs 4 pins, got %d", len(names.Selector))
	}

	var pins Pins
	var err error
	if pins.Capture, err = lookupPin(names.Capture); err != nil {
		return nil, err
	}
	if pins.EncoderA, err = lookupPin(names.EncoderA); err != nil {
		return nil, err
	}
	if pins.EncoderB, err = lookupPin(names.EncoderB); err != nil {
		return nil, err
	}
	for i, name := range names.Selector {
		if pins.Selector[i], err = lookupPin(name); err != nil {
			return nil, err
		}
	}
	return NewGPIOInputWithPins(pins, debounce, time.Now, logger)
}

func lookupPin(name string) (gpio.PinIn, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "gpio lookup", name, fmt.Errorf("no such pin"))
	}
	return p, nil
}

// NewGPIOInputWithPins configures already resolved pins (useful for testing).
func NewGPIOInputWithPins(pins Pins, debounce time.Duration, now func() time.Time, logger *zap.Logger) (*GPIOInput, error) {
	level := []gpio.PinIn{pins.Capture, pins.EncoderB}
	level = append(level, pins.Selector[:]...)
	for _, p := range level {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, domain.NewError(domain.KindDeviceUnavailable, "gpio configure", p.Name(), err)
		}
	}
	if err := pins.EncoderA.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, domain.NewError(domain.KindDeviceUnavailable, "gpio configure", pins.EncoderA.Name(), err)
	}

	in := &GPIOInput{
		pins:     pins,
		debounce: debounce,
		now:      now,
		logger:   logger,
		ticks:    make(chan domain.Direction, 16),
		done:     make(chan struct{}),
	}
	in.wg.Add(1)
	go in.watchEncoder()

	logger.Info("gpio input ready",
		zap.String("capture", pins.Capture.Name()),
		zap.String("encoder_a", pins.EncoderA.Name()),
		zap.String("encoder_b", pins.EncoderB.Name()))
	return in, nil
}

// watchEncoder decodes quadrature steps on falling edges of channel A.
func (in *GPIOInput) watchEncoder() {
	defer in.wg.Done()
	for {
		select {
		case <-in.done:
			return
		default:
		}

		if !in.pins.EncoderA.WaitForEdge(edgeWait) {
			continue
		}
		if in.pins.EncoderA.Read() != gpio.Low {
			continue
		}
		dir := domain.DirectionReverse
		if in.pins.EncoderB.Read() == gpio.High {
			dir = domain.DirectionForward
		}
		select {
		case in.ticks <- dir:
		default:
			in.logger.Debug("encoder step dropped")
		}
	}
}

// PollSelector returns the first position whose line is pulled low.
func (in *GPIOInput) PollSelector() domain.SelectorPosition {
	for i, p := range in.pins.Selector {
		if p.Read() == gpio.Low {
			return domain.SelectorPosition(i + 1)
		}
	}
	return domain.SelectorNone
}

// PollEncoderTick returns one queued encoder step, if any.
func (in *GPIOInput) PollEncoderTick() (domain.Direction, bool) {
	select {
	case dir := <-in.ticks:
		return dir, true
	default:
		return 0, false
	}
}

// PollCaptureButton reports Pressed once per debounced press, Held while
// the button stays down and Released otherwise.
func (in *GPIOInput) PollCaptureButton() domain.ButtonState {
	down := in.pins.Capture.Read() == gpio.Low
	now := in.now()

	if down == in.pressed {
		if down {
			return domain.ButtonHeld
		}
		return domain.ButtonReleased
	}
	if now.Sub(in.changedAt) < in.debounce {
		if in.pressed {
			return domain.ButtonHeld
		}
		return domain.ButtonReleased
	}

	in.pressed = down
	in.changedAt = now
	if down {
		return domain.ButtonPressed
	}
	return domain.ButtonReleased
}

// PollOverride always reports nothing; the physical panel has no override.
func (in *GPIOInput) PollOverride() (domain.SelectorPosition, bool) {
	return domain.SelectorNone, false
}

// Close stops the encoder goroutine and releases the pins.
func (in *GPIOInput) Close() error {
	in.once.Do(func() {
		close(in.done)
		in.wg.Wait()
		halt := []gpio.PinIn{in.pins.Capture, in.pins.EncoderA, in.pins.EncoderB}
		halt = append(halt, in.pins.Selector[:]...)
		for _, p := range halt {
			if err := p.Halt(); err != nil {
				in.logger.Warn("failed to halt pin", zap.String("pin", p.Name()), zap.Error(err))
			}
		}
	})
	return nil
}

// Ensure GPIOInput implements domain.InputSource.
var _ domain.InputSource = (*GPIOInput)(nil)
