// Package ble advertises the appliance over Bluetooth LE and exposes its
// status as a read/notify characteristic.
package ble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

var (
	ServiceDeviceInfo = bluetooth.ServiceUUIDDeviceInformation
	CharManufacturer  = bluetooth.CharacteristicUUIDManufacturerNameString
	CharModel         = bluetooth.CharacteristicUUIDModelNumberString

	// Custom kidcam service (base: 6B1Cxxxx-5D2E-4F0A-9C41-7A3E2B8D6F10)
	ServiceKidcamUUID = bluetooth.NewUUID([16]byte{0x6B, 0x1C, 0x00, 0x00, 0x5D, 0x2E, 0x4F, 0x0A, 0x9C, 0x41, 0x7A, 0x3E, 0x2B, 0x8D, 0x6F, 0x10})
	// 01: Device status (Read/Notify)
	CharStatus = bluetooth.NewUUID([16]byte{0x6B, 0x1C, 0x00, 0x01, 0x5D, 0x2E, 0x4F, 0x0A, 0x9C, 0x41, 0x7A, 0x3E, 0x2B, 0x8D, 0x6F, 0x10})
)

// Server is the GATT peripheral. It implements domain.StatusPublisher.
type Server struct {
	adapter *bluetooth.Adapter
	name    string
	version string
	logger  *zap.Logger

	statusHandle bluetooth.Characteristic

	mu    sync.Mutex
	write func([]byte) (int, error)
	last  []byte
}

// NewServer creates a server advertising as name on the default adapter.
func NewServer(name, version string, logger *zap.Logger) *Server {
	return &Server{
		adapter: bluetooth.DefaultAdapter,
		name:    name,
		version: version,
		logger:  logger,
	}
}

// Start enables the adapter, registers the services and starts advertising.
func (s *Server) Start() error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	err := s.adapter.AddService(&bluetooth.Service{
		UUID: ServiceDeviceInfo,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  CharManufacturer,
				Value: []byte("kidcam"),
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  CharModel,
				Value: []byte("kidcam " + s.version),
				Flags: bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add device info service: %w", err)
	}

	err = s.adapter.AddService(&bluetooth.Service{
		UUID: ServiceKidcamUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:   CharStatus,
				Value:  []byte("{}"),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
				Handle: &s.statusHandle,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add kidcam service: %w", err)
	}

	s.mu.Lock()
	s.write = s.statusHandle.Write
	s.mu.Unlock()

	adv := s.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.name,
		ServiceUUIDs: []bluetooth.UUID{ServiceKidcamUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}

	s.logger.Info("ble advertising", zap.String("name", s.name))
	return nil
}

// Publish updates the status characteristic when the snapshot changed.
func (s *Server) Publish(ctx context.Context, st domain.Status) {
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("failed to encode status", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.write == nil || bytes.Equal(data, s.last) {
		return
	}
	if _, err := s.write(data); err != nil {
		s.logger.Warn("failed to notify status", zap.Error(err))
		return
	}
	s.last = data
}

// Ensure Server implements domain.StatusPublisher.
var _ domain.StatusPublisher = (*Server)(nil)
