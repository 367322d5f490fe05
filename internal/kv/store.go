// Package kv persists small client-side values (tokens, the cached user) per
// terminal identity.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

var validNamespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Store is a string key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]string{}}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = value
	return nil
}

func (s *MemoryStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.rows, key)
	}
	return nil
}

// FileStore keeps one JSON document per namespace under a state directory.
// A missing or unreadable document reads as empty.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// Dir hands out FileStores that share a state directory.
type Dir struct {
	root string
	mu   sync.Mutex
	open map[string]*FileStore
}

func NewDir(root string) *Dir {
	if root == "" {
		root = filepath.Join(os.TempDir(), "termfolio-state")
	}
	return &Dir{root: root, open: map[string]*FileStore{}}
}

// Namespace returns the store for one terminal identity. Two calls with the
// same namespace share a mutex so writers never interleave.
func (d *Dir) Namespace(namespace string) (*FileStore, error) {
	if !validNamespacePattern.MatchString(namespace) {
		return nil, fmt.Errorf("invalid kv namespace %q", namespace)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.open[namespace]; ok {
		return s, nil
	}
	s := NewFileStore(filepath.Join(d.root, namespace+".json"))
	d.open[namespace] = s
	return s, nil
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.readLocked()
	v, ok := rows[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.readLocked()
	rows[key] = value
	return s.writeLocked(rows)
}

func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.readLocked()
	changed := false
	for _, key := range keys {
		if _, ok := rows[key]; ok {
			delete(rows, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.writeLocked(rows)
}

// readLocked treats a missing, empty or corrupt file as an empty document;
// the file may be wiped externally at any time.
func (s *FileStore) readLocked() map[string]string {
	rows := map[string]string{}
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return rows
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return map[string]string{}
	}
	return rows
}

func (s *FileStore) writeLocked(rows map[string]string) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, ".kv-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
