package tracker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

const fileStateVersion = 1

type fileState struct {
	Version   int                           `json:"version"`
	UpdatedAt time.Time                     `json:"updated_at"`
	Claims    map[string]model.TrackerEntry `json:"claims"`
}

// FileStore keeps tracker state in a single JSON file. Every Put rewrites the
// file atomically, so a crash leaves either the old or the new state on disk.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	claims map[string]model.TrackerEntry
}

// NewFileStore loads state from path, starting empty if the file does not exist
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, eris.New("tracker: file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "tracker: create state dir")
	}

	s := &FileStore{path: path, claims: make(map[string]model.TrackerEntry)}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, eris.Wrapf(err, "tracker: read %s", path)
	}

	// A damaged state file must not be mistaken for an empty one.
	var state fileState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, eris.Wrapf(err, "tracker: parse %s", path)
	}
	if state.Version != fileStateVersion {
		return nil, eris.Errorf("tracker: %s has unsupported version %d", path, state.Version)
	}
	for key, entry := range state.Claims {
		entry.Key = key
		s.claims[key] = entry
	}
	return s, nil
}

// Get returns the entry for key
func (s *FileStore) Get(ctx context.Context, key string) (model.TrackerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.claims[key]
	return e, ok, nil
}

// Put records entry and rewrites the state file. On failure the in-memory
// state is rolled back so it keeps matching the file.
func (s *FileStore) Put(ctx context.Context, entry model.TrackerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.claims[entry.Key]
	s.claims[entry.Key] = entry

	err := writeJSONAtomic(s.path, fileState{
		Version:   fileStateVersion,
		UpdatedAt: time.Now().UTC(),
		Claims:    s.claims,
	})
	if err != nil {
		if had {
			s.claims[entry.Key] = prev
		} else {
			delete(s.claims, entry.Key)
		}
		return eris.Wrapf(err, "tracker: write %s", s.path)
	}
	return nil
}

// All returns every entry ordered by key
func (s *FileStore) All(ctx context.Context) ([]model.TrackerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]model.TrackerEntry, 0, len(s.claims))
	for _, e := range s.claims {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Close is a no-op; every Put is already on disk
func (s *FileStore) Close() error {
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
