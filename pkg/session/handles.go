package session

import (
	"sync"

	"github.com/google/uuid"
)

// Handles maps display handles to encoded images. A handle stays
// resolvable until it is released.
type Handles struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewHandles creates an empty registry
func NewHandles() *Handles {
	return &Handles{items: make(map[string][]byte)}
}

// Register stores data under a new handle
func (h *Handles) Register(data []byte) string {
	handle := uuid.NewString()
	h.Put(handle, data)
	return handle
}

// Put stores data under an existing handle
func (h *Handles) Put(handle string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[handle] = data
}

// Resolve returns the data behind a handle
func (h *Handles) Resolve(handle string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.items[handle]
	return data, ok
}

// Release drops a handle. Releasing an unknown handle is a no-op.
func (h *Handles) Release(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.items, handle)
}

// Len returns the number of live handles
func (h *Handles) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
