// Package detect tracks which records changed between snapshot reads.
// State is a per-source map of record keys to content checksums,
// persisted as versioned JSON and rewritten atomically so a crash
// mid-cycle can only replay work, never lose it.
package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/shelfsync/internal/atomicfile"
)

// Version is written to every state file. Files carrying any other
// version are treated as corrupt.
const Version = 1

// Entry records the last published form of one key.
type Entry struct {
	Checksum      string    `json:"checksum"`
	LastSyncedUTC time.Time `json:"last_synced_utc"`
}

// SourceState holds all entries for one snapshot source.
type SourceState struct {
	Entries map[string]Entry `json:"entries"`
}

// State is the root of the persisted file. Sources are keyed by the
// snapshot's lowercased base name, so independent snapshots never
// shadow each other.
type State struct {
	Version int                     `json:"version"`
	Sources map[string]*SourceState `json:"sources"`
}

// NewState returns an empty current-version state.
func NewState() *State {
	return &State{Version: Version, Sources: map[string]*SourceState{}}
}

// Entries returns the committed entries for source. The result may be
// nil and must not be mutated.
func (s *State) Entries(source string) map[string]Entry {
	if b := s.Sources[source]; b != nil {
		return b.Entries
	}
	return nil
}

func (s *State) bucket(source string) *SourceState {
	b := s.Sources[source]
	if b == nil {
		b = &SourceState{Entries: map[string]Entry{}}
		s.Sources[source] = b
	}
	return b
}

// CorruptionError reports a state file that exists but cannot be
// trusted. Callers typically warn and continue with the empty state
// returned alongside it, which forces a full republish.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state file %s unusable: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// Store loads and persists the state file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (st *Store) Path() string { return st.path }

// Load reads the state file. A missing file is a fresh install and
// yields an empty state with no error. An unreadable, unparseable, or
// wrong-version file also yields a usable empty state, together with
// a *CorruptionError for the caller to surface.
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return NewState(), &CorruptionError{Path: st.path, Err: err}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return NewState(), &CorruptionError{Path: st.path, Err: err}
	}
	if s.Version != Version {
		return NewState(), &CorruptionError{
			Path: st.path,
			Err:  fmt.Errorf("unsupported version %d", s.Version),
		}
	}

	if s.Sources == nil {
		s.Sources = map[string]*SourceState{}
	}
	for _, b := range s.Sources {
		if b != nil && b.Entries == nil {
			b.Entries = map[string]Entry{}
		}
	}
	return &s, nil
}

// Save atomically replaces the state file with s.
func (st *Store) Save(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(st.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	if err := atomicfile.WriteFile(st.path, data); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}
