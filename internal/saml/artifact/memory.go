package artifact

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore is an in-process artifact store. Suitable for single-instance
// deployments and tests; artifacts do not survive a restart and are not
// shared across instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Put stores a payload under the artifact ID
func (s *MemoryStore) Put(_ context.Context, id string, payload []byte, ttl time.Duration) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{payload: buf, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Pull atomically fetches and deletes the payload for the artifact ID. The
// lookup and delete happen under one lock acquisition, so of any number of
// concurrent Pulls for the same ID exactly one observes the payload.
func (s *MemoryStore) Pull(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	delete(s.entries, id)

	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.payload, nil
}

// Backend reports the backend name
func (s *MemoryStore) Backend() string {
	return "memory"
}

// Len reports the number of live entries, expired ones included until pulled.
// Used by tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
