package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is the on-disk shape of a persisted session. A stored record is
// either complete or treated as absent; a partially valid record is never
// trusted.
type Record struct {
	PlayerID         string    `json:"player_id"`
	DeviceSpecificID string    `json:"device_specific_id"`
	SessionToken     string    `json:"session_token"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ClientVersion    string    `json:"client_version"`
	ResVersion       string    `json:"res_version"`
}

func (r Record) Complete() bool {
	return strings.TrimSpace(r.PlayerID) != "" &&
		strings.TrimSpace(r.SessionToken) != ""
}

// Store persists one session record across process invocations.
type Store interface {
	// Load returns the stored record, or ok=false when no trustworthy
	// record exists. Corrupt or unreadable state is reported as absent,
	// never as a failure.
	Load() (Record, bool)
	Save(Record) error
	Clear() error
}

// FileStore keeps the record as a JSON file, by default under the user's
// config directory.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStorePath resolves the conventional token store location.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("session: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "linkura-cli", "session.json"), nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (Record, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("session: unreadable token store, treating as absent")
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("session: corrupt token store, treating as absent")
		return Record{}, false
	}
	if !rec.Complete() {
		log.Warn().Str("path", s.path).Msg("session: incomplete token store record, treating as absent")
		return Record{}, false
	}
	return rec, true
}

// Save writes the record atomically: a temp file in the same directory is
// flushed, closed, and renamed over the target, so a crash leaves either
// the old record or the new one.
func (s *FileStore) Save(rec Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: create store dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("session: create temp store: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: chmod temp store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: write temp store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session: sync temp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("session: replace store: %w", err)
	}
	log.Debug().Str("path", s.path).Msg("session: token store saved")
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: clear store: %w", err)
	}
	return nil
}
