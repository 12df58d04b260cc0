package healthlog

import (
	"context"
	"strconv"
	"sync"
)

// Store persists whole collections. There is no partial update: callers read
// everything, change it, and write everything back.
type Store interface {
	All(ctx context.Context, collection string) ([]Entry, error)
	ReplaceAll(ctx context.Context, collection string, entries []Entry) error

	// Health returns backend-specific status, with at least a "status" key.
	Health(ctx context.Context) map[string]string
	Close() error
}

// MemoryStore keeps collections in process memory. Used for tests and the
// "memory" store driver.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Entry)}
}

func (m *MemoryStore) All(_ context.Context, collection string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.collections[collection]...), nil
}

func (m *MemoryStore) ReplaceAll(_ context.Context, collection string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append([]Entry(nil), entries...)
	return nil
}

func (m *MemoryStore) Health(context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"status":      "up",
		"driver":      "memory",
		"collections": strconv.Itoa(len(m.collections)),
	}
}

func (m *MemoryStore) Close() error { return nil }
