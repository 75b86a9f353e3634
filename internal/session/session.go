// Package session provides the session-scoped flag store. A session spans
// reloads of the client (the ID is handed to the re-executed process) and
// ends when the client is started fresh.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hoist/internal/fsutil"
)

// EnvSessionID carries the session ID across a reload.
const EnvSessionID = "HOIST_SESSION_ID"

// FlagFirstCheckComplete is set once the first web bundle check of the
// session has concluded.
const FlagFirstCheckComplete = "firstCheckComplete"

var logger = loggo.GetLogger("hoist.session")

// Store is a session-scoped boolean store.
type Store interface {
	Get(key string) bool
	Set(key string, value bool)
}

// MemoryStore is a Store that lives as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]bool)}
}

func (s *MemoryStore) Get(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[key]
}

func (s *MemoryStore) Set(key string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
}

type sessionFile struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Flags     map[string]bool `json:"flags"`
}

// FileStore persists flags for one session ID as dir/<id>.json.
type FileStore struct {
	mu   sync.Mutex
	dir  string
	data sessionFile
}

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

// Resolve returns the session ID inherited through EnvSessionID, or a new
// one when the variable is unset or malformed. fresh reports whether a new
// session was started.
func Resolve() (id string, fresh bool) {
	if inherited := os.Getenv(EnvSessionID); inherited != "" {
		if _, err := uuid.Parse(inherited); err == nil {
			return inherited, false
		}
		logger.Warningf("ignoring malformed %s %q", EnvSessionID, inherited)
	}
	return NewID(), true
}

// OpenFileStore loads the store for id, creating it if needed.
func OpenFileStore(dir, id string) (*FileStore, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotValidf("session id %q", id)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Annotate(err, "creating session directory")
	}

	s := &FileStore{
		dir: dir,
		data: sessionFile{
			ID:        id,
			CreatedAt: time.Now().UTC(),
			Flags:     make(map[string]bool),
		},
	}

	raw, err := os.ReadFile(s.path())
	switch {
	case os.IsNotExist(err):
		if err := s.save(); err != nil {
			return nil, errors.Trace(err)
		}
	case err != nil:
		return nil, errors.Annotatef(err, "reading session %s", id)
	default:
		var existing sessionFile
		if err := json.Unmarshal(raw, &existing); err != nil {
			logger.Warningf("session %s is corrupt, starting empty: %v", id, err)
		} else {
			s.data.CreatedAt = existing.CreatedAt
			for k, v := range existing.Flags {
				s.data.Flags[k] = v
			}
		}
	}

	return s, nil
}

// ID returns the session ID.
func (s *FileStore) ID() string {
	return s.data.ID
}

func (s *FileStore) Get(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Flags[key]
}

// Set updates the flag and persists it. A failed write is logged; the
// in-memory value still holds for the rest of the process.
func (s *FileStore) Set(key string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Flags[key] = value
	if err := s.save(); err != nil {
		logger.Errorf("persisting session flag %s: %v", key, err)
	}
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, s.data.ID+".json")
}

func (s *FileStore) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(fsutil.AtomicWrite(s.path(), raw, 0600))
}

// Prune removes session files not modified within maxAge, except keep.
func Prune(dir string, maxAge time.Duration, keep string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Annotate(err, "reading session directory")
	}

	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if id == keep {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, errors.Annotatef(err, "removing session %s", id)
		}
		removed = append(removed, id)
	}
	return removed, nil
}
