// mock_storage.go - Mock staging store for handler tests
package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harga-pangan/console/internal/models"
)

// ErrInjected is returned by MockStorage when a failure was requested.
var ErrInjected = errors.New("injected storage failure")

// MockStorage implements storage.Store with in-memory metadata and a
// directory for file bodies. It records every status change.
type MockStorage struct {
	dir string

	mu       sync.RWMutex
	files    map[string]*models.FileInfo
	paths    map[string]string
	history  map[string][]string
	deleted  []string
	FailSave bool
}

// NewMockStorage creates a mock store writing file bodies into dir.
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		dir:     dir,
		files:   make(map[string]*models.FileInfo),
		paths:   make(map[string]string),
		history: make(map[string][]string),
	}
}

func (m *MockStorage) Save(name, komoditas string, r io.Reader) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave {
		return nil, ErrInjected
	}

	id := uuid.NewString()
	path := filepath.Join(m.dir, id+filepath.Ext(name))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		return nil, err
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Komoditas:  komoditas,
		Size:       size,
		UploadedAt: time.Now(),
	}
	m.files[id] = info
	m.paths[id] = path
	return info, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return info, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, info := range m.files {
		files = append(files, info)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, ok := m.paths[id]
	if !ok {
		return fmt.Errorf("file not found: %s", id)
	}
	delete(m.files, id)
	delete(m.paths, id)
	m.deleted = append(m.deleted, id)
	return os.Remove(path)
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, ok := m.paths[id]
	if !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}
	return path, nil
}

func (m *MockStorage) MarkStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.files[id]
	if !ok {
		return fmt.Errorf("file not found: %s", id)
	}
	info.Status = status
	m.history[id] = append(m.history[id], status)
	return nil
}

// Deleted returns the IDs of removed files, in order.
func (m *MockStorage) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// StatusHistory returns every status a file went through, in order.
func (m *MockStorage) StatusHistory(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.history[id]...)
}
