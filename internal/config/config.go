package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Display drivers.
const (
	DisplayEbiten   = "ebiten"
	DisplayHeadless = "headless"
)

// Input sources.
const (
	InputHardware = "hardware"
	InputKeyboard = "keyboard"
)

// Camera drivers.
const (
	CameraGocv = "gocv"
	CameraMock = "mock"
)

// Album listing orders.
const (
	SortName   = "name"
	SortNative = "native"
)

// Config is the appliance configuration as read from config.yaml.
type Config struct {
	Media struct {
		BaseDir        string `yaml:"base_dir"`        // Root of all identity albums
		ResumePosition bool   `yaml:"resume_position"` // Restore per-identity cursor on re-activation
		Sort           string `yaml:"sort"`            // name or native
	} `yaml:"media"`
	Display struct {
		Driver     string `yaml:"driver"` // ebiten or headless
		Fullscreen bool   `yaml:"fullscreen"`
		Width      int    `yaml:"width"`
		Height     int    `yaml:"height"`
	} `yaml:"display"`
	Input struct {
		Source   string        `yaml:"source"` // hardware or keyboard
		Pins     Pins          `yaml:"pins"`
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"input"`
	NFC struct {
		Enabled     bool   `yaml:"enabled"`
		SPIPort     string `yaml:"spi_port"`     // "" selects the first SPI port
		ResetPin    string `yaml:"reset_pin"`
		IRQPin      string `yaml:"irq_pin"`
		AbsentAfter int    `yaml:"absent_after"` // Consecutive empty reads before a tag counts as removed
	} `yaml:"nfc"`
	Camera struct {
		Driver       string        `yaml:"driver"` // gocv or mock
		SelfieID     int           `yaml:"selfie_id"`
		ForwardID    int           `yaml:"forward_id"`
		Width        int           `yaml:"width"`
		Height       int           `yaml:"height"`
		FPS          float64       `yaml:"fps"`
		Codec        string        `yaml:"codec"` // FourCC for recordings
		RetryInitial time.Duration `yaml:"retry_initial"`
		RetryMax     time.Duration `yaml:"retry_max"`
	} `yaml:"camera"`
	Recording struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"recording"`
	Tick        time.Duration `yaml:"tick"`         // Main loop period
	IdleTimeout time.Duration `yaml:"idle_timeout"` // 0 disables display blanking
	Storage     struct {
		MinFreeMB uint64 `yaml:"min_free_mb"`
	} `yaml:"storage"`
	State struct {
		Dir     string `yaml:"dir"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"state"`
	BLE struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
	} `yaml:"ble"`
	Exif struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"exif"`
	Log struct {
		Path  string `yaml:"path"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Pins names the GPIO lines of the physical controls.
type Pins struct {
	Capture  string   `yaml:"capture"`
	EncoderA string   `yaml:"encoder_a"`
	EncoderB string   `yaml:"encoder_b"`
	Selector []string `yaml:"selector"` // Positions 1-4 in order
}

// DefaultPath returns ~/.config/kidcam/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kidcam", "config.yaml"), nil
}

// Load reads configuration from path. A missing file yields the defaults.
// Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}

	cfg.Media.BaseDir = "./pics"
	cfg.Media.ResumePosition = false
	cfg.Media.Sort = SortName

	cfg.Display.Driver = DisplayEbiten
	cfg.Display.Fullscreen = false
	cfg.Display.Width = 640
	cfg.Display.Height = 480

	cfg.Input.Source = InputHardware
	cfg.Input.Pins = Pins{
		Capture:  "GPIO25",
		EncoderA: "GPIO13",
		EncoderB: "GPIO26",
		Selector: []string{"GPIO5", "GPIO6", "GPIO12", "GPIO16"},
	}
	cfg.Input.Debounce = 200 * time.Millisecond

	cfg.NFC.Enabled = false
	cfg.NFC.ResetPin = "GPIO22"
	cfg.NFC.IRQPin = "GPIO18"
	cfg.NFC.AbsentAfter = 3

	cfg.Camera.Driver = CameraGocv
	cfg.Camera.SelfieID = 0
	cfg.Camera.ForwardID = 1
	cfg.Camera.Width = 640
	cfg.Camera.Height = 480
	cfg.Camera.FPS = 30
	cfg.Camera.Codec = "mp4v"
	cfg.Camera.RetryInitial = 500 * time.Millisecond
	cfg.Camera.RetryMax = 10 * time.Second

	cfg.Recording.Timeout = 5 * time.Second
	cfg.Tick = 33 * time.Millisecond
	cfg.IdleTimeout = 0
	cfg.Storage.MinFreeMB = 100

	cfg.State.Dir = "~/.local/share/kidcam"
	cfg.State.Enabled = true

	cfg.BLE.Enabled = false
	cfg.BLE.Name = "kidcam"
	cfg.Exif.Enabled = false

	cfg.Log.Path = "~/.local/share/kidcam/kidcam.log"
	cfg.Log.Level = "info"

	return cfg
}

// Validate checks the configuration for values the appliance cannot run with.
func (c *Config) Validate() error {
	if c.Media.BaseDir == "" {
		return fmt.Errorf("media.base_dir must not be empty")
	}
	switch c.Media.Sort {
	case SortName, SortNative:
	default:
		return fmt.Errorf("invalid media.sort: %q (must be name or native)", c.Media.Sort)
	}

	switch c.Display.Driver {
	case DisplayEbiten, DisplayHeadless:
	default:
		return fmt.Errorf("invalid display.driver: %q (must be ebiten or headless)", c.Display.Driver)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	}

	switch c.Input.Source {
	case InputHardware, InputKeyboard:
	default:
		return fmt.Errorf("invalid input.source: %q (must be hardware or keyboard)", c.Input.Source)
	}
	if c.Input.Source == InputHardware {
		if len(c.Input.Pins.Selector) != 4 {
			return fmt.Errorf("input.pins.selector needs 4 pins, got %d", len(c.Input.Pins.Selector))
		}
		if c.Input.Pins.Capture == "" || c.Input.Pins.EncoderA == "" || c.Input.Pins.EncoderB == "" {
			return fmt.Errorf("input.pins: capture, encoder_a and encoder_b are required")
		}
	}
	if c.Input.Debounce < 0 {
		return fmt.Errorf("input.debounce must not be negative")
	}

	if c.NFC.Enabled && c.NFC.AbsentAfter < 1 {
		return fmt.Errorf("nfc.absent_after must be at least 1")
	}

	switch c.Camera.Driver {
	case CameraGocv, CameraMock:
	default:
		return fmt.Errorf("invalid camera.driver: %q (must be gocv or mock)", c.Camera.Driver)
	}
	if c.Camera.SelfieID == c.Camera.ForwardID {
		return fmt.Errorf("camera.selfie_id and camera.forward_id must differ")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive")
	}
	if len(c.Camera.Codec) != 4 {
		return fmt.Errorf("camera.codec must be a 4 character FourCC, got %q", c.Camera.Codec)
	}
	if c.Camera.RetryInitial <= 0 || c.Camera.RetryMax < c.Camera.RetryInitial {
		return fmt.Errorf("camera retry bounds invalid: initial %s, max %s", c.Camera.RetryInitial, c.Camera.RetryMax)
	}

	if c.Recording.Timeout <= 0 {
		return fmt.Errorf("recording.timeout must be positive")
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	if c.State.Enabled && c.State.Dir == "" {
		return fmt.Errorf("state.dir must not be empty when state is enabled")
	}
	if c.BLE.Enabled && c.BLE.Name == "" {
		return fmt.Errorf("ble.name must not be empty when ble is enabled")
	}
	return nil
}
