package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDisabled        = errors.New("file uploads are not configured")
	ErrTooLarge        = errors.New("file is too large")
	ErrTypeNotAllowed  = errors.New("file type is not allowed")
	ErrEmptyUpload     = errors.New("file is empty")
	errObjectNotStored = errors.New("object not stored")
)

// Store persists submission files
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// ObjectKey builds the storage key for a file of a school's submission.
// Format: submissions/<slug>/YYYY/MM/<uuid><ext>
func ObjectKey(schoolSlug, originalName string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("submissions/%s/%04d/%02d/%s%s", schoolSlug, at.Year(), int(at.Month()), uuid.NewString(), ext)
}

// Validate checks size and type against the configuration and returns the
// normalized content type.
func (c *Config) Validate(originalName, contentType string, size int64) (string, error) {
	if size <= 0 {
		return "", ErrEmptyUpload
	}
	if c.MaxFileBytes > 0 && size > c.MaxFileBytes {
		return "", ErrTooLarge
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(originalName)))
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
	}
	if len(c.AllowedTypes) == 0 {
		return ct, nil
	}
	for _, allowed := range c.AllowedTypes {
		if ct == allowed {
			return ct, nil
		}
	}
	return "", ErrTypeNotAllowed
}

// MemoryStore keeps objects in process memory
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

// Put stores the object
func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

// Get returns a stored object
func (m *MemoryStore) Get(key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", errObjectNotStored
	}
	return data, m.types[key], nil
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
