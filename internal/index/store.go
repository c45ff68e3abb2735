package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gitlab.com/gitlab-org/textshard/internal/safe"
)

// Store persists the shard mapping.
type Store interface {
	// Load returns the persisted mapping. A store without a persisted mapping returns an empty
	// mapping and no error.
	Load(ctx context.Context) (Mapping, error)
	// Save replaces the persisted mapping with m.
	Save(ctx context.Context, m Mapping) error
}

// JSONStore persists the mapping as an indented JSON document in a single file. The file is
// replaced atomically on every save.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the location of the index file.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the mapping from disk. A missing file yields an empty mapping.
func (s *JSONStore) Load(ctx context.Context) (Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Mapping{}, nil
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}

	m := Mapping{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	return m, nil
}

// Save writes the mapping to disk.
func (s *JSONStore) Save(ctx context.Context, m Mapping) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m == nil {
		m = Mapping{}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	if err := safe.WriteFile(s.path, append(data, '\n'), safe.FileWriterConfig{FileMode: 0o644}); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}

	return nil
}

// MemoryStore keeps the mapping in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	mapping Mapping
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mapping: Mapping{}}
}

// Load returns a copy of the stored mapping.
func (s *MemoryStore) Load(ctx context.Context) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.mapping.Clone(), nil
}

// Save stores a copy of m.
func (s *MemoryStore) Save(ctx context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapping = m.Clone()

	return nil
}
