package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const cursorVersion = 1

// Cursor marks the newest fully committed match sequence number. A zero
// SeqNum means discovery has not been anchored yet.
type Cursor struct {
	Version   int       `json:"version"`
	SeqNum    int64     `json:"seq_num"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the cursor file. Saves are atomic: the record is
// written to a temp file, synced, then renamed over the target, so a crash
// mid-save never leaves a truncated cursor behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a cursor store backed by the given file path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("cursor: path is empty")
	}
	return &Store{path: path}, nil
}

// Load reads the persisted cursor. A missing file yields the zero cursor;
// an unreadable or malformed file is an error, never a silent reset,
// because resetting would re-anchor discovery and skip matches.
func (s *Store) Load() (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("cursor: read %s: %w", s.path, err)
	}

	var c Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return Cursor{}, fmt.Errorf("cursor: decode %s: %w", s.path, err)
	}
	if c.Version != cursorVersion {
		return Cursor{}, fmt.Errorf("cursor: unsupported version %d in %s", c.Version, s.path)
	}
	if c.SeqNum < 0 {
		return Cursor{}, fmt.Errorf("cursor: negative sequence number %d in %s", c.SeqNum, s.path)
	}
	return c, nil
}

// Save durably records seqNum as the new cursor position.
func (s *Store) Save(seqNum int64) error {
	if seqNum <= 0 {
		return fmt.Errorf("cursor: refusing to save non-positive sequence number %d", seqNum)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := Cursor{
		Version:   cursorVersion,
		SeqNum:    seqNum,
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("cursor: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cursor: ensure directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeFileSync(tmp, payload); err != nil {
		return fmt.Errorf("cursor: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cursor: rename temp file: %w", err)
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func writeFileSync(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
