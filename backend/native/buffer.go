package native

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

// Buffer is a HAL buffer.
type Buffer struct {
	dev       *Device
	raw       hal.Buffer
	size      uint64
	storage   backend.StorageMode
	mappable  bool
	destroyed bool
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

func (d *Device) newBuffer(desc *backend.BufferDescriptor) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("native: buffer %q: zero size", desc.Label)
	}
	if desc.Storage == backend.StoragePrivate && desc.Contents == nil {
		return nil, fmt.Errorf("native: private buffer %q needs contents", desc.Label)
	}
	usage := desc.Usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc
	mappable := desc.Usage&gputypes.BufferUsageMapRead != 0
	if mappable {
		// MapRead only combines with CopyDst.
		usage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	raw, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp(desc.Size, 4),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: buffer %q: %w", desc.Label, mapErr(err))
	}
	b := &Buffer{
		dev:      d,
		raw:      raw,
		size:     desc.Size,
		storage:  desc.Storage,
		mappable: mappable,
	}
	if len(desc.Contents) > 0 {
		if err := b.upload(0, desc.Contents); err != nil {
			d.dev.DestroyBuffer(raw)
			return nil, fmt.Errorf("native: buffer %q: %w", desc.Label, err)
		}
	}
	slogger().Debug("buffer created", "label", desc.Label, "size", desc.Size)
	return b, nil
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Storage returns the storage mode.
func (b *Buffer) Storage() backend.StorageMode { return b.storage }

// Write queues a copy of data at offset. Private buffers reject writes.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.destroyed {
		return backend.ErrDestroyed
	}
	if b.storage == backend.StoragePrivate {
		return fmt.Errorf("native: write to private buffer")
	}
	if offset+uint64(len(data)) > b.size {
		return backend.ErrInvalidRegion
	}
	return b.upload(offset, data)
}

// upload writes through the queue. Queue writes need 4-byte aligned sizes,
// so a ragged tail is padded with zeros.
func (b *Buffer) upload(offset uint64, data []byte) error {
	if offset%4 != 0 {
		return fmt.Errorf("native: unaligned write offset %d: %w", offset, backend.ErrInvalidRegion)
	}
	if n := uint64(len(data)); n%4 != 0 {
		padded := make([]byte, alignUp(n, 4))
		copy(padded, data)
		data = padded
	}
	return mapErr(b.dev.queue.WriteBuffer(b.raw, offset, data))
}

// Read copies buffer contents at offset into dst. Buffers created without
// map-read usage are copied through a staging buffer first.
func (b *Buffer) Read(offset uint64, dst []byte) error {
	if b.destroyed {
		return backend.ErrDestroyed
	}
	if offset+uint64(len(dst)) > b.size {
		return backend.ErrInvalidRegion
	}
	if len(dst) == 0 {
		return nil
	}
	if b.mappable {
		return b.dev.readMapped(b.raw, offset, dst)
	}

	start := offset &^ 3
	size := alignUp(offset+uint64(len(dst)), 4) - start
	staging, err := b.dev.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "gfx_buffer_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: readback staging: %w", mapErr(err))
	}
	defer b.dev.dev.DestroyBuffer(staging)

	enc, err := b.dev.beginEncoder("gfx_buffer_readback")
	if err != nil {
		return err
	}
	enc.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{{SrcOffset: start, Size: size}})
	if err := b.dev.submitWait(enc); err != nil {
		return err
	}
	return b.dev.readMapped(staging, offset-start, dst)
}

// Destroy releases the HAL buffer.
func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.dev.dev.DestroyBuffer(b.raw)
	b.raw = nil
}

// readMapped maps len(dst) bytes of buf at offset and copies them out.
func (d *Device) readMapped(buf hal.Buffer, offset uint64, dst []byte) error {
	m, err := d.dev.MapBuffer(buf, offset, uint64(len(dst)))
	if err != nil {
		return fmt.Errorf("native: map buffer: %w", mapErr(err))
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), len(dst)))
	return mapErr(d.dev.UnmapBuffer(buf))
}

// rawBuffer returns the HAL buffer behind b, or nil for foreign or destroyed
// buffers.
func rawBuffer(b backend.Buffer) hal.Buffer {
	nb, ok := b.(*Buffer)
	if !ok || nb == nil || nb.destroyed {
		return nil
	}
	return nb.raw
}
