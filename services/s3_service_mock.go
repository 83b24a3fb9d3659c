package services

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockObjectStore keeps objects in memory
type MockObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string

	// FailPut makes every PutObject call fail when set
	FailPut error
}

func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MockObjectStore) PutObject(_ context.Context, key, contentType string, body io.Reader) error {
	if m.FailPut != nil {
		return m.FailPut
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = content
	m.types[key] = contentType
	m.mu.Unlock()
	return nil
}

func (m *MockObjectStore) PresignGet(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("object not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

func (m *MockObjectStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	delete(m.types, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether key was stored and not deleted
func (m *MockObjectStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// ContentType returns the content type key was stored with
func (m *MockObjectStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

// Keys lists every stored key
func (m *MockObjectStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
