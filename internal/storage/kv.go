package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by KV.Get when the key has never been written
// or was deleted.
var ErrNotFound = errors.New("key not found")

// KV is durable key-value storage for client-side state.
type KV interface {
	Get(key string, v any) error
	Put(key string, v any) error
	Delete(key string) error
}

// FileKV stores each key as a msgpack file. Writes go through a temp file
// and a rename so a reader never sees a half-written record.
type FileKV struct {
	mu  sync.Mutex
	dir string
}

// NewFileKV creates the directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

// Get decodes the record stored under key into v.
func (s *FileKV) Get(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// Put replaces the record stored under key.
func (s *FileKV) Put(key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, key+".msgpack")
}

// MemoryKV is an in-process KV used by tests and the CLI's --ephemeral mode.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.data[key]
	if !ok {
		return ErrNotFound
	}
	return msgpack.Unmarshal(data, v)
}

func (m *MemoryKV) Put(key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
