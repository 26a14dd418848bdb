package contextstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process document store used in dev mode and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]string)}
}

// Get returns the document for key, or nil when no document exists.
func (s *MemoryStore) Get(ctx context.Context, key string) (map[string]any, error) {
	s.mu.RLock()
	raw, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Set stores the document for key, replacing any existing one. Documents are
// round-tripped through JSON so callers never share mutable state with the
// store, matching the Redis implementation.
func (s *MemoryStore) Set(ctx context.Context, key string, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[key] = string(data)
	s.mu.Unlock()
	return nil
}

// Keys returns every key currently present.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	return keys, nil
}
