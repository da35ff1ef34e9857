package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const stateDBName = "state.db"

// StateStore implements domain.CursorStore and domain.CaptureJournal using a
// SQLCipher encrypted SQLite database. Album paths name children, so the
// journal is encrypted at rest.
type StateStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewStateStore opens (or creates) the encrypted state database in stateDir.
func NewStateStore(stateDir string, key []byte) (*StateStore, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, stateDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// A wrong key only shows up on first access.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}
	// One writer; the tick loop and CLI never share a handle.
	db.SetMaxOpenConns(1)

	s := &StateStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *StateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS album_cursors (
		identity TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		captured_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS captures_identity ON captures (identity, captured_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.CursorStore implementation ---

// LoadCursor returns the saved cursor for identity.
func (s *StateStore) LoadCursor(identity string) (int, bool, error) {
	var position int
	err := s.db.QueryRow(`SELECT position FROM album_cursors WHERE identity = ?`, identity).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return position, true, nil
}

// SaveCursor stores the cursor for identity.
func (s *StateStore) SaveCursor(identity string, position int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO album_cursors (identity, position, updated_at) VALUES (?, ?, ?)`,
		identity, position, s.now().Unix())
	return err
}

// --- domain.CaptureJournal implementation ---

// RecordCapture appends a capture to the journal.
func (s *StateStore) RecordCapture(c domain.Capture) error {
	_, err := s.db.Exec(`INSERT INTO captures (identity, path, kind, captured_at) VALUES (?, ?, ?, ?)`,
		c.Identity, c.Path, c.Kind.String(), c.CapturedAt.UnixMicro())
	return err
}

// LastCapture returns the newest capture for identity, or nil if none.
func (s *StateStore) LastCapture(identity string) (*domain.Capture, error) {
	var path, kind string
	var at int64
	err := s.db.QueryRow(`
		SELECT path, kind, captured_at FROM captures
		WHERE identity = ? ORDER BY captured_at DESC, id DESC LIMIT 1`, identity).Scan(&path, &kind, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c := &domain.Capture{
		Identity:   identity,
		Path:       path,
		Kind:       domain.MediaImage,
		CapturedAt: time.UnixMicro(at),
	}
	if kind == domain.MediaVideo.String() {
		c.Kind = domain.MediaVideo
	}
	return c, nil
}

// CountCaptures returns how many captures identity has made.
func (s *StateStore) CountCaptures(identity string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM captures WHERE identity = ?`, identity).Scan(&n)
	return n, err
}

// --- meta ---

// SetMeta stores a metadata value.
func (s *StateStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetMeta returns a metadata value, or "" if unset.
func (s *StateStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Path returns the database file path.
func (s *StateStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *StateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure StateStore implements both interfaces.
var _ domain.CursorStore = (*StateStore)(nil)
var _ domain.CaptureJournal = (*StateStore)(nil)
