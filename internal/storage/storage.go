// Package storage keeps evidence frames referenced by evidence records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/reunite/internal/faces"
)

// ErrNotFound is returned when a key has no stored image.
var ErrNotFound = errors.New("image not found")

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid image key")

// ImageStore persists frames under generated keys.
type ImageStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// newKey builds "YYYY/MM/DD/<uuid><ext>".
func newKey(now time.Time, data []byte) string {
	return path.Join(now.UTC().Format("2006/01/02"), uuid.NewString()+faces.Extension(data))
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	clean := path.Clean(key)
	return clean == key && !strings.HasPrefix(clean, "..")
}

// FileStore writes images below a root directory.
type FileStore struct {
	root string
	now  func() time.Time
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &FileStore{root: root, now: time.Now}, nil
}

// Put writes data atomically (temp file + rename) and returns its key.
func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	key := newKey(s.now(), data)
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create evidence subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write evidence image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close evidence image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store evidence image: %w", err)
	}
	return key, nil
}

// Get reads the image stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence image: %w", err)
	}
	return data, nil
}

// MemStore keeps images in memory.
type MemStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{images: make(map[string][]byte)}
}

// Put stores a copy of data.
func (s *MemStore) Put(_ context.Context, data []byte) (string, error) {
	key := newKey(time.Now(), data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[key] = append([]byte(nil), data...)
	return key, nil
}

// Get returns the image stored under key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Len returns the number of stored images.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
