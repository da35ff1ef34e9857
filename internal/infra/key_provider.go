package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

const (
	keyFileName = "state.key"
	keySize     = 32 // 256-bit SQLCipher key

	// KeyEnvVar overrides the key file, e.g. for devices provisioned in bulk.
	KeyEnvVar = "KIDCAM_STATE_KEY"
)

// FileKeyProvider implements domain.KeyProvider using a hex key file in the
// state directory, with an optional environment override.
type FileKeyProvider struct {
	keyPath string
	lookup  func(string) (string, bool)
}

// NewFileKeyProvider creates a FileKeyProvider for the given state directory.
func NewFileKeyProvider(stateDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(stateDir, keyFileName),
		lookup:  os.LookupEnv,
	}
}

// GetKey returns the key from the environment or the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	if v, ok := p.lookup(KeyEnvVar); ok && v != "" {
		return decodeKey(v)
	}
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey writes the key file with owner-only permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists reports whether a key is available.
func (p *FileKeyProvider) KeyExists() bool {
	if v, ok := p.lookup(KeyEnvVar); ok && v != "" {
		return true
	}
	_, err := os.Stat(p.keyPath)
	return err == nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the existing key or generates and stores a new one.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
