// Package backend provides storage backends that scheduled requests are serviced against.
package backend

import (
	"fmt"
	"sync"

	"github.com/blkiosched/bfq/internal/interfaces"
)

// Memory provides a RAM-based backend for the scheduler's simulated driver
type Memory struct {
	data []byte
	size int64
	mu   sync.RWMutex
}

// NewMemory creates a new memory backend of the given size in bytes
func NewMemory(size int64) *Memory {
	return &Memory{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements the Backend interface. Unlike the short-read rule
// stated on interfaces.Backend, a read that reaches past the end of the
// device is truncated and returns the short count with a nil error.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off >= m.size {
		return 0, nil
	}

	// Calculate how much we can actually read
	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt implements the Backend interface. A write starting at or past
// the end of the device fails; unlike the short-write rule stated on
// interfaces.Backend, one that reaches past the end is truncated and
// returns the short count with a nil error.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off >= m.size {
		return 0, fmt.Errorf("write beyond end of device")
	}

	// Calculate how much we can actually write
	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements the Backend interface
func (m *Memory) Size() int64 {
	return m.size
}

// Close implements the Backend interface
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	
	// Clear the data to help with GC
	m.data = nil
	return nil
}

// Flush implements the Backend interface
func (m *Memory) Flush() error {
	// Memory backend doesn't need flushing
	return nil
}

// Discard implements the DiscardBackend interface
func (m *Memory) Discard(offset, length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset >= m.size {
		return nil
	}

	end := offset + length
	if end > m.size {
		end = m.size
	}

	// Zero out the discarded region
	for i := offset; i < end; i++ {
		m.data[i] = 0
	}

	return nil
}

// WriteZeroes implements the WriteZeroesBackend interface
func (m *Memory) WriteZeroes(offset, length int64) error {
	return m.Discard(offset, length)
}

// Sync implements the SyncBackend interface
func (m *Memory) Sync() error {
	// Memory backend doesn't need syncing
	return nil
}

// SyncRange implements the SyncBackend interface  
func (m *Memory) SyncRange(offset, length int64) error {
	// Memory backend doesn't need syncing
	return nil
}

// Resize implements the ResizeBackend interface
func (m *Memory) Resize(newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newSize < 0 {
		return fmt.Errorf("negative size")
	}

	grown := make([]byte, newSize)
	copy(grown, m.data)
	m.data = grown
	m.size = newSize
	return nil
}

// Stats implements the StatBackend interface
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"type":   "memory",
		"size":   m.size,
		"allocated": len(m.data),
	}
}

// Compile-time interface checks
var (
	_ interfaces.Backend           = (*Memory)(nil)
	_ interfaces.DiscardBackend    = (*Memory)(nil)
	_ interfaces.WriteZeroesBackend = (*Memory)(nil)
	_ interfaces.SyncBackend       = (*Memory)(nil)
	_ interfaces.StatBackend       = (*Memory)(nil)
	_ interfaces.ResizeBackend     = (*Memory)(nil)
)