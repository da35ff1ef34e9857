package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/ble"
	"github.com/eliteGoblin/kidcam/internal/config"
	"github.com/eliteGoblin/kidcam/internal/daemon"
	"github.com/eliteGoblin/kidcam/internal/display"
	"github.com/eliteGoblin/kidcam/internal/display/window"
	"github.com/eliteGoblin/kidcam/internal/domain"
	"github.com/eliteGoblin/kidcam/internal/hardware"
	"github.com/eliteGoblin/kidcam/internal/infra"
	"github.com/eliteGoblin/kidcam/internal/media"
	"github.com/eliteGoblin/kidcam/internal/opencv"
	"github.com/eliteGoblin/kidcam/internal/usecase"
)

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	fsys := infra.NewAlbumFS()
	stateDir := fsys.ExpandHome(cfg.State.Dir)
	baseDir := fsys.ExpandHome(cfg.Media.BaseDir)

	// One process owns the camera sensors.
	lock := infra.NewInstanceLock(stateDir)
	if err := lock.Acquire(Version); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release instance lock", zap.Error(err))
		}
	}()

	logger.Info("kidcam starting",
		zap.String("version", Version),
		zap.String("base_dir", baseDir),
		zap.String("input", cfg.Input.Source),
		zap.String("display", cfg.Display.Driver),
		zap.String("camera", cfg.Camera.Driver))

	// Optional encrypted state: album cursors and the capture journal
	var cursors domain.CursorStore
	var journal domain.CaptureJournal
	if cfg.State.Enabled {
		store, err := openStateStore(stateDir)
		if err != nil {
			logger.Warn("state store unavailable, cursors and journal disabled", zap.Error(err))
		} else {
			defer store.Close()
			cursors = store
			journal = store
			if err := store.SetMeta(metaLastStarted, time.Now().Format(time.RFC3339)); err != nil {
				logger.Warn("failed to record start", zap.Error(err))
			}
		}
	}

	registry := usecase.NewAlbumRegistry(fsys, baseDir, usecase.RegistryOptions{
		Sort:           usecase.SortOrder(cfg.Media.Sort),
		Cursors:        cursors,
		ResumePosition: cfg.Media.ResumePosition,
	}, logger)
	if err := registry.Activate(domain.DefaultIdentity); err != nil {
		return fmt.Errorf("failed to open default album: %w", err)
	}

	hw := usecase.NewHardwareContext(newCameraDriver(cfg, logger), usecase.HardwareOptions{
		RetryInitial: cfg.Camera.RetryInitial,
		RetryMax:     cfg.Camera.RetryMax,
		Now:          time.Now,
	}, logger)
	if err := hw.Open(domain.CameraSelfie); err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	// Keyboard keys always work, in hardware mode as selector overrides
	keys := hardware.NewKeyboardInput(logger)
	var input domain.InputSource = keys
	var tags domain.TagReader
	if cfg.Input.Source == config.InputHardware {
		controls, err := hardware.NewGPIOInput(hardware.PinNames{
			Capture:  cfg.Input.Pins.Capture,
			EncoderA: cfg.Input.Pins.EncoderA,
			EncoderB: cfg.Input.Pins.EncoderB,
			Selector: cfg.Input.Pins.Selector,
		}, cfg.Input.Debounce, logger)
		if err != nil {
			_ = hw.Close()
			return fmt.Errorf("failed to open controls: %w", err)
		}
		input = hardware.WithOverrides(controls, keys)
	} else {
		tags = keys
	}

	if cfg.NFC.Enabled {
		reader, err := hardware.NewNFCReader(hardware.NFCOptions{
			SPIPort:     cfg.NFC.SPIPort,
			ResetPin:    cfg.NFC.ResetPin,
			IRQPin:      cfg.NFC.IRQPin,
			AbsentAfter: cfg.NFC.AbsentAfter,
		}, logger)
		if err != nil {
			logger.Warn("nfc reader unavailable, staying on the default album", zap.Error(err))
		} else {
			tags = reader
		}
	}

	var tagger domain.MediaTagger
	if cfg.Exif.Enabled {
		et, err := infra.NewExifTagger()
		if err != nil {
			logger.Warn("exif tagging disabled", zap.Error(err))
		} else {
			defer et.Close()
			tagger = et
		}
	}

	var watcher domain.AlbumWatcher
	if w, err := infra.NewAlbumWatcher(logger); err != nil {
		logger.Warn("album watcher unavailable", zap.Error(err))
	} else {
		watcher = w
	}

	var screen domain.Display
	var win *window.Window
	if cfg.Display.Driver == config.DisplayHeadless {
		screen = display.NewHeadless(cfg.Display.Width, cfg.Display.Height)
	} else {
		win = window.New(window.Options{
			Title:      "kidcam",
			Width:      cfg.Display.Width,
			Height:     cfg.Display.Height,
			Fullscreen: cfg.Display.Fullscreen,
		}, keys.Press, logger)
		screen = win
	}

	disk := infra.NewDiskMonitor()
	playback := usecase.NewPlayback(
		media.NewImageDecoder(),
		opencv.NewVideoOpener(cfg.Display.Width, cfg.Display.Height),
		cfg.Display.Width, cfg.Display.Height,
		time.Now, logger)

	machine := usecase.NewMachine(registry, hw, playback, fsys, usecase.MachineConfig{
		RecordingTimeout: cfg.Recording.Timeout,
		MinFreeMB:        cfg.Storage.MinFreeMB,
		Now:              time.Now,
		Storage:          disk,
		Journal:          journal,
		Tagger:           tagger,
	}, logger)

	var publishers []domain.StatusPublisher
	if cfg.BLE.Enabled {
		server := ble.NewServer(cfg.BLE.Name, Version, logger)
		if err := server.Start(); err != nil {
			logger.Warn("ble unavailable", zap.Error(err))
		} else {
			publishers = append(publishers, server)
		}
	}
	statusConfig := daemon.DefaultStatusConfig()
	statusConfig.MediaDir = baseDir
	status := daemon.NewStatusReporter(statusConfig, disk, publishers, logger)

	runnerConfig := daemon.DefaultRunnerConfig()
	runnerConfig.Tick = cfg.Tick
	runnerConfig.IdleTimeout = cfg.IdleTimeout
	runner := daemon.NewRunner(runnerConfig, machine, input, tags, watcher, screen, status, time.Now, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() { _ = status.Run(ctx) }()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	if win != nil {
		// The game loop owns the main goroutine until the window closes.
		go func() {
			<-ctx.Done()
			win.Close()
		}()
		if err := win.Run(); err != nil {
			logger.Error("window failed", zap.Error(err))
		}
		cancel()
	}

	err = <-done
	logger.Info("kidcam stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newCameraDriver(cfg *config.Config, logger *zap.Logger) domain.CameraDriver {
	if cfg.Camera.Driver == config.CameraMock {
		return hardware.NewMockDriver(cfg.Camera.Width, cfg.Camera.Height, logger)
	}
	return opencv.NewGocvDriver(opencv.CameraOptions{
		SelfieID:  cfg.Camera.SelfieID,
		ForwardID: cfg.Camera.ForwardID,
		Width:     cfg.Camera.Width,
		Height:    cfg.Camera.Height,
		FPS:       cfg.Camera.FPS,
		Codec:     cfg.Camera.Codec,
	}, logger)
}

const metaLastStarted = "last_started"

// openStateStore opens the encrypted state database, creating its key on
// first run.
func openStateStore(stateDir string) (*infra.StateStore, error) {
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(stateDir))
	if err != nil {
		return nil, fmt.Errorf("state key: %w", err)
	}
	return infra.NewStateStore(stateDir, key)
}
