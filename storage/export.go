package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown or already revoked export.
var ErrNotFound = errors.New("export not found")

// Handle identifies a finished export the host can download.
type Handle struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ExportStore keeps finished recordings until their handle is revoked.
type ExportStore interface {
	Put(ctx context.Context, filename, contentType string, data []byte) (Handle, error)
	Revoke(ctx context.Context, id string) error
	Open(ctx context.Context, id string) (Handle, io.ReadCloser, error)
}

type memoryExport struct {
	handle Handle
	data   []byte
}

// MemoryStore keeps exports in process memory, like a browser object URL.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	exports map[string]memoryExport
}

// NewMemoryStore creates a store whose handles point at baseURL + "/exports/{id}".
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		exports: make(map[string]memoryExport),
	}
}

// Put stores a copy of data under a fresh id.
func (m *MemoryStore) Put(_ context.Context, filename, contentType string, data []byte) (Handle, error) {
	id := uuid.NewString()
	h := Handle{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         fmt.Sprintf("%s/exports/%s", m.baseURL, id),
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.exports[id] = memoryExport{handle: h, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return h, nil
}

// Revoke drops the export.
func (m *MemoryStore) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exports[id]; !ok {
		return ErrNotFound
	}
	delete(m.exports, id)
	return nil
}

// Open returns a reader over the stored bytes.
func (m *MemoryStore) Open(_ context.Context, id string) (Handle, io.ReadCloser, error) {
	m.mu.RLock()
	e, ok := m.exports[id]
	m.mu.RUnlock()
	if !ok {
		return Handle{}, nil, ErrNotFound
	}
	return e.handle, io.NopCloser(bytes.NewReader(e.data)), nil
}

// Live is the number of exports not yet revoked.
func (m *MemoryStore) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.exports)
}
