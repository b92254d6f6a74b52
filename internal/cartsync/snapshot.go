package cartsync

import (
	"context"
	"errors"
	"sync"
)

// ErrSnapshotNotFound is returned by Load when no snapshot exists under a key.
var ErrSnapshotNotFound = errors.New("cart snapshot not found")

// SnapshotStore is a durable key-value slot for serialized cart snapshots.
// Save overwrites any previous value under the key.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps snapshots for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: map[string][]byte{}}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.slots[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryStore) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
