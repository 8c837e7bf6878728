package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFile is the state file name inside the luce state directory.
const StateFile = "state.json"

type stateRecord struct {
	Fingerprint
	RecordedAt time.Time `json:"recordedAt"`
}

// FileStore keeps the fingerprint as a small JSON document.
type FileStore struct {
	Path string
	Now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, Now: time.Now}
}

// Load returns the zero Fingerprint when the file is missing or corrupt.
func (s *FileStore) Load() (Fingerprint, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Fingerprint{}, nil
	}
	if err != nil {
		return Fingerprint{}, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Fingerprint{}, nil
	}
	return rec.Fingerprint, nil
}

// Save writes atomically via a temp file in the same directory.
func (s *FileStore) Save(f Fingerprint) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	data, err := json.MarshalIndent(stateRecord{Fingerprint: f, RecordedAt: now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", s.Path, err)
	}
	return nil
}
