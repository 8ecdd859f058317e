package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockArchiveStore is an in-memory ArchiveStore for testing
type MockArchiveStore struct {
	objects map[string][]byte
	mu      sync.RWMutex

	// Err, when set, is returned by PutSnapshot
	Err error
}

// NewMockArchiveStore creates a new mock archive store
func NewMockArchiveStore() *MockArchiveStore {
	return &MockArchiveStore{objects: make(map[string][]byte)}
}

// SetAsMockForTesting sets this mock as the global archive store for testing
func (m *MockArchiveStore) SetAsMockForTesting() {
	SetArchiveStore(m)
}

// PutSnapshot stores the encoded snapshot in memory
func (m *MockArchiveStore) PutSnapshot(_ context.Context, snapshot OrderSnapshot) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	key := ArchiveKey(snapshot.Order.ID)
	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return key, nil
}

// PresignURL returns a fake URL for a stored snapshot
func (m *MockArchiveStore) PresignURL(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	if !m.Exists(key) {
		return "", fmt.Errorf("object not found in mock archive: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

// Exists checks if a snapshot was stored under key
func (m *MockArchiveStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Snapshot decodes the snapshot stored under key
func (m *MockArchiveStore) Snapshot(key string) (OrderSnapshot, bool) {
	m.mu.RLock()
	body, ok := m.objects[key]
	m.mu.RUnlock()

	var s OrderSnapshot
	if !ok || json.Unmarshal(body, &s) != nil {
		return s, false
	}
	return s, true
}
