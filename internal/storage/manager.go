package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harga-pangan/console/internal/models"
)

// Store defines the interface for staging dataset files before upload.
type Store interface {
	Save(name, komoditas string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
	MarkStatus(id, status string) error
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu         sync.RWMutex
	stagingDir string
	files      map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(stagingDir string) (*LocalStore, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &LocalStore{
		stagingDir: stagingDir,
		files:      make(map[string]*models.FileInfo),
	}, nil
}

// Save writes a dataset to the staging area. The file keeps its extension
// so DuckDB's reader can sniff it.
func (s *LocalStore) Save(name, komoditas string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := s.pathFor(id, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Komoditas:  komoditas,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     "staged",
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}

	return info, nil
}

// List returns the most recent files.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a staged file.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	if err := os.Remove(s.pathFor(id, info.Name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Sweep removes staged files older than maxAge, including files left
// behind by an earlier process that are not in the index. It returns how
// many files were removed.
func (s *LocalStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		fi, err := entry.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.stagingDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("deleting file: %w", err)
		}
		delete(s.files, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		removed++
	}
	return removed, nil
}

// GetFilePath returns the absolute path to a staged file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}

	return s.pathFor(id, info.Name), nil
}

// MarkStatus records where a staged file is in the upload flow.
func (s *LocalStore) MarkStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file not found: %s", id)
	}
	info.Status = status
	return nil
}

func (s *LocalStore) pathFor(id, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return filepath.Join(s.stagingDir, id+ext)
}
