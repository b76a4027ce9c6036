package gfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// IndexType is the width of an index.
type IndexType uint8

const (
	Index16 IndexType = iota
	Index32
)

// String returns the index type name.
func (t IndexType) String() string {
	if t == Index32 {
		return "uint32"
	}
	return "uint16"
}

func (t IndexType) size() int {
	if t == Index32 {
		return 4
	}
	return 2
}

func (t IndexType) native() gputypes.IndexFormat {
	if t == Index32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// IndexBuffer holds owned index data and one native buffer.
type IndexBuffer struct {
	dev    *Device
	handle Handle
	label  string

	typ     IndexType
	indices []uint32
	dynamic bool

	native  backend.Buffer
	pending bool

	destroyed bool
}

func encodeIndices(typ IndexType, indices []uint32) ([]byte, error) {
	out := make([]byte, len(indices)*typ.size())
	for i, v := range indices {
		if typ == Index16 {
			if v > math.MaxUint16 {
				return nil, fmt.Errorf("%w: index %d does not fit 16 bits", ErrInvalidArgument, v)
			}
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
			continue
		}
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out, nil
}

func newIndexBuffer(dev *Device, label string, typ IndexType, indices []uint32, dynamic bool) (*IndexBuffer, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("gfx: index buffer %q: %w: no indices", label, ErrInvalidArgument)
	}
	if _, err := encodeIndices(typ, indices); err != nil {
		return nil, fmt.Errorf("gfx: index buffer %q: %w", label, err)
	}
	return &IndexBuffer{
		dev:     dev,
		label:   label,
		typ:     typ,
		indices: append([]uint32(nil), indices...),
		dynamic: dynamic,
	}, nil
}

// Kind implements resource.
func (ib *IndexBuffer) Kind() Kind { return KindIndexBuffer }

// Type returns the index width.
func (ib *IndexBuffer) Type() IndexType { return ib.typ }

// Count returns the number of indices.
func (ib *IndexBuffer) Count() int { return len(ib.indices) }

// Native returns the native buffer, or nil after release.
func (ib *IndexBuffer) Native() backend.Buffer { return ib.native }

// Flush replaces the indices of a dynamic buffer. The upload is deferred
// to the next draw.
func (ib *IndexBuffer) Flush(indices []uint32) error {
	if ib.destroyed {
		return contractErr("flush index buffer", ErrReleased)
	}
	if !ib.dynamic {
		return contractErr("flush index buffer", fmt.Errorf("%w: %q is static", ErrInvalidArgument, ib.label))
	}
	if len(indices) == 0 {
		return fmt.Errorf("gfx: index buffer %q: %w: no indices", ib.label, ErrInvalidArgument)
	}
	if _, err := encodeIndices(ib.typ, indices); err != nil {
		return fmt.Errorf("gfx: index buffer %q: %w", ib.label, err)
	}
	ib.indices = append(ib.indices[:0], indices...)
	ib.pending = true
	return nil
}

func (ib *IndexBuffer) ensure() error {
	if ib.destroyed {
		return ErrReleased
	}
	if ib.native != nil && !ib.pending {
		return nil
	}
	contents, err := encodeIndices(ib.typ, ib.indices)
	if err != nil {
		return err
	}
	storage := backend.StoragePrivate
	if ib.dynamic {
		storage = backend.StorageShared
	}
	buf, err := ib.dev.backend.NewBuffer(&backend.BufferDescriptor{
		Label:    ib.label,
		Size:     uint64(len(contents)),
		Usage:    gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		Storage:  storage,
		Contents: contents,
	})
	if err != nil {
		return resourceErr(KindIndexBuffer, ib.label, err)
	}
	if old := ib.native; old != nil {
		ib.dev.retire(old.Destroy)
	}
	ib.native = buf
	ib.pending = false
	return nil
}

func (ib *IndexBuffer) release() {
	if ib.native != nil {
		ib.native.Destroy()
		ib.native = nil
	}
}

func (ib *IndexBuffer) rebuild() error { return ib.ensure() }

// Destroy releases the buffer and unregisters it. Destroy is idempotent.
func (ib *IndexBuffer) Destroy() {
	if ib.destroyed {
		return
	}
	ib.destroyed = true
	ib.dev.unbindIndexBuffer(ib)
	if old := ib.native; old != nil {
		ib.dev.retire(old.Destroy)
		ib.native = nil
	}
	ib.dev.registry.remove(ib.handle)
}
