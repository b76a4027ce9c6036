package software

import (
	"fmt"

	"github.com/gogpu/gfx/backend"
)

// Buffer is a CPU-resident buffer.
type Buffer struct {
	data      []byte
	storage   backend.StorageMode
	destroyed bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Storage returns the storage mode.
func (b *Buffer) Storage() backend.StorageMode { return b.storage }

// Write copies data at offset. Private buffers reject writes.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.destroyed {
		return backend.ErrDestroyed
	}
	if b.storage == backend.StoragePrivate {
		return fmt.Errorf("software: write to private buffer")
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return backend.ErrInvalidRegion
	}
	copy(b.data[offset:], data)
	return nil
}

// Read copies buffer contents at offset into dst.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if b.destroyed {
		return backend.ErrDestroyed
	}
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return backend.ErrInvalidRegion
	}
	copy(dst, b.data[offset:])
	return nil
}

// Destroy releases the buffer memory.
func (b *Buffer) Destroy() {
	b.destroyed = true
	b.data = nil
}

// bytes returns the live contents or nil once destroyed.
func (b *Buffer) bytes() []byte {
	if b == nil || b.destroyed {
		return nil
	}
	return b.data
}
