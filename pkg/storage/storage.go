// Package storage provides a small key/value abstraction used to persist
// alert state and other documents
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("key not found")

// Storage is the interface for persistent storage
type Storage interface {
	// Get retrieves a value by key
	Get(key string) ([]byte, error)

	// Set stores a value by key
	Set(key string, value []byte) error

	// Delete removes a value by key. Deleting a missing key is not an error.
	Delete(key string) error

	// List returns all keys with a prefix, sorted
	List(prefix string) ([]string, error)

	// Close closes the storage
	Close() error
}

// FileStorage implements Storage with one file per key under a base directory
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates the base directory if needed
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

// Path returns the base directory
func (s *FileStorage) Path() string {
	return s.basePath
}

// Get retrieves a value by key
func (s *FileStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// Set writes value to a temp file and renames it into place
func (s *FileStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Delete removes a value by key
func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyToPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List walks the directory for prefix. Keys always use forward slashes.
func (s *FileStorage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := filepath.Walk(filepath.Join(s.basePath, prefix), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

// Close closes the storage
func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) keyToPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// MemoryStorage implements Storage using an in-memory map
type MemoryStorage struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

// Get retrieves a copy of the value stored at key
func (s *MemoryStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value
func (s *MemoryStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes a value by key
func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// List returns all keys with a prefix
func (s *MemoryStorage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the storage
func (s *MemoryStorage) Close() error {
	return nil
}

// Codec encodes documents for a DocumentStore
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Ext() string
}

type yamlCodec struct{}

func (yamlCodec) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (yamlCodec) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }
func (yamlCodec) Ext() string                        { return ".yaml" }

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.MarshalIndent(v, "", "  ") }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Ext() string                        { return ".json" }

// Codecs
var (
	YAML Codec = yamlCodec{}
	JSON Codec = jsonCodec{}
)

// DocumentStore stores typed documents under a collection prefix
type DocumentStore struct {
	storage    Storage
	codec      Codec
	collection string
}

// NewDocumentStore creates a store for documents in collection
func NewDocumentStore(storage Storage, codec Codec, collection string) *DocumentStore {
	if codec == nil {
		codec = YAML
	}
	return &DocumentStore{storage: storage, codec: codec, collection: strings.Trim(collection, "/")}
}

func (s *DocumentStore) key(id string) string {
	return s.collection + "/" + id + s.codec.Ext()
}

// Get loads the document id into v
func (s *DocumentStore) Get(id string, v any) error {
	data, err := s.storage.Get(s.key(id))
	if err != nil {
		return err
	}
	if err := s.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", id, err)
	}
	return nil
}

// Put stores v as the document id
func (s *DocumentStore) Put(id string, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}
	return s.storage.Set(s.key(id), data)
}

// Delete removes the document id
func (s *DocumentStore) Delete(id string) error {
	return s.storage.Delete(s.key(id))
}

// IDs returns the ids of every document in the collection
func (s *DocumentStore) IDs() ([]string, error) {
	keys, err := s.storage.List(s.collection + "/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.collection+"/")
		if strings.Contains(name, "/") || !strings.HasSuffix(name, s.codec.Ext()) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, s.codec.Ext()))
	}
	return ids, nil
}
