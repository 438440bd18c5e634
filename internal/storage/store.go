// Package storage abstracts private document persistence behind path keys.
// Bytes are only ever served through the policy-checked dossier handlers;
// nothing here is reachable from a public root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("storage: object not found")

// Store is the document gateway contract. Keys are opaque path strings;
// content is opaque (no dedup, no hashing).
type Store interface {
	Upload(key string, r io.Reader, contentType string, size int64) error
	// Download returns the object bytes and content type, or ErrNotFound.
	Download(key string) ([]byte, string, error)
	// Delete is idempotent: deleting a missing key is not an error.
	Delete(key string) error
	BulkDelete(keys []string) error
}

// ObjectKey builds a per-dossier object key with a unique prefix so
// re-uploads of the same filename never collide:
// dossiers/<ownerID>/<segment>/<uuid>_<filename>
func ObjectKey(ownerID, segment, filename string) string {
	return path.Join("dossiers", ownerID, segment,
		fmt.Sprintf("%s_%s", uuid.NewString()[:8], filename))
}

/* ============================== Memory ================================== */

type memObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// Memory is an in-process Store used by tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Upload(key string, r io.Reader, contentType string, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, contentType: contentType, storedAt: time.Now()}
	return nil
}

func (m *Memory) Download(key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return obj.data, obj.contentType, nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) BulkDelete(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// Len reports the number of stored objects (test helper).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
