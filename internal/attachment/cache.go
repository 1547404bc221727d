// Package attachment holds the file a user has staged for their next request.
package attachment

import (
	"sync"

	"github.com/cchalm/code-buddy/internal/protocol"
)

// Cache is a single slot. Attaching replaces whatever was staged before, and consuming always empties it.
type Cache struct {
	mu   sync.Mutex
	file *protocol.File
}

// NewCache creates an empty Cache
func NewCache() *Cache {
	return &Cache{}
}

// Attach stages file, discarding any file staged earlier
func (c *Cache) Attach(file protocol.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.file = &file
}

// ConsumeForSend returns the staged file and clears the slot, whether or not the caller goes on to send it
func (c *Cache) ConsumeForSend() (protocol.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return protocol.File{}, false
	}
	file := *c.file
	c.file = nil
	return file, true
}

// Peek returns the staged file without clearing the slot
func (c *Cache) Peek() (protocol.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return protocol.File{}, false
	}
	return *c.file, true
}
