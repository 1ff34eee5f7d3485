package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	atomicio "github.com/cryptorun/core/internal/io"
)

var filenameReplacer = strings.NewReplacer("/", "_", ":", "_")

func filename(venue, symbol, dataType string) string {
	return fmt.Sprintf("%s_%s_%s.json", venue, filenameReplacer.Replace(symbol), dataType)
}

// LocalStore is the file-backed Store: one JSON file per key under baseDir,
// plus an in-memory cache loaded at construction time so reads never touch
// disk on the hot path. Writes go through write-then-rename so a crash
// mid-write never leaves a corrupt checkpoint.
type LocalStore struct {
	baseDir string

	mu    sync.RWMutex
	cache map[Key]Checkpoint
}

// NewLocalStore opens (creating if absent) baseDir and loads every existing
// checkpoint file into the in-memory cache.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	s := &LocalStore{baseDir: baseDir, cache: make(map[Key]Checkpoint)}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var c Checkpoint
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		s.cache[keyOf(c)] = c
	}

	return s, nil
}

func (s *LocalStore) Get(ctx context.Context, venue, symbol, dataType string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[Key{Venue: venue, Symbol: symbol, DataType: dataType}]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

// Save upserts c, rejecting a write whose UpdatedAt is older than the
// currently cached value for the same key.
func (s *LocalStore) Save(ctx context.Context, c Checkpoint) error {
	key := keyOf(c)

	s.mu.Lock()
	if existing, ok := s.cache[key]; ok && c.UpdatedAt < existing.UpdatedAt {
		s.mu.Unlock()
		return nil
	}
	s.cache[key] = c
	s.mu.Unlock()

	path := filepath.Join(s.baseDir, filename(c.Venue, c.Symbol, c.DataType))
	return atomicio.WriteJSONAtomic(path, c)
}

func (s *LocalStore) GetAll(ctx context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Checkpoint, 0, len(s.cache))
	for _, c := range s.cache {
		out = append(out, c)
	}
	return out, nil
}

func (s *LocalStore) Delete(ctx context.Context, venue, symbol, dataType string) error {
	key := Key{Venue: venue, Symbol: symbol, DataType: dataType}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	path := filepath.Join(s.baseDir, filename(venue, symbol, dataType))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
