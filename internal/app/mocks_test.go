package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockGistStorage is an in-memory gist.Storage for tests.
type MockGistStorage struct {
	mu      sync.Mutex
	files   map[string]string
	enabled bool

	saveCalls int
	loadCalls int
	saveErr   error
	loadErr   error
}

func NewMockGistStorage() *MockGistStorage {
	return &MockGistStorage{
		files:   make(map[string]string),
		enabled: true,
	}
}

func (m *MockGistStorage) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *MockGistStorage) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

func (m *MockGistStorage) SetSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *MockGistStorage) SetLoadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *MockGistStorage) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

func (m *MockGistStorage) Load(ctx context.Context, filename string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadCalls++
	if m.loadErr != nil {
		return "", m.loadErr
	}
	content, ok := m.files[filename]
	if !ok {
		return "", fmt.Errorf("file %q not found in gist", filename)
	}
	return content, nil
}

func (m *MockGistStorage) Save(ctx context.Context, filename, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.files[filename] = content
	return nil
}

func (m *MockGistStorage) LoadJSON(ctx context.Context, filename string, dest any) error {
	content, err := m.Load(ctx, filename)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(content), dest)
}

func (m *MockGistStorage) SaveJSON(ctx context.Context, filename string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.Save(ctx, filename, string(b))
}
