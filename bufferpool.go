package gfx

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// PoolConfig configures a BufferPool.
type PoolConfig struct {
	// MaxFree caps the free list. When exceeded, the oldest free buffers
	// are destroyed. Zero means unbounded.
	MaxFree int

	// Alignment rounds every requested size up to a multiple. Zero or one
	// disables rounding.
	Alignment uint64
}

// DefaultPoolConfig returns the pool configuration used by NewDevice.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxFree:   64,
		Alignment: 256,
	}
}

// PoolStats is a snapshot of BufferPool counters.
type PoolStats struct {
	// Allocated counts native buffers created by the pool.
	Allocated uint64
	// Reused counts acquisitions served from the free list.
	Reused uint64
	// Free is the current free-list length.
	Free int
	// InUse is the number of buffers in the current generation.
	InUse int
	// Outstanding is the number of submitted, not yet reclaimed generations.
	Outstanding int
	// Generation is the id of the current generation.
	Generation uint64
}

// PooledBuffer is a transient shared-storage buffer handed out by a pool.
// It is valid until the generation it was acquired in is reclaimed.
type PooledBuffer struct {
	buf  backend.Buffer
	size uint64
}

// Buffer returns the native buffer.
func (b *PooledBuffer) Buffer() backend.Buffer { return b.buf }

// Size returns the buffer capacity in bytes.
func (b *PooledBuffer) Size() uint64 { return b.size }

// Write copies data into the buffer at offset.
func (b *PooledBuffer) Write(offset uint64, data []byte) error {
	return b.buf.Write(offset, data)
}

type generation struct {
	id   uint64
	bufs []*PooledBuffer
}

// BufferPool hands out transient buffers for per-draw constant uploads.
//
// Buffers acquired during one submission form a generation. A generation
// is queued by SubmitGeneration and only returns to the free list when
// Reclaim is called for it from the backend completion callback, so a
// buffer is never reused while the GPU may still read it.
//
// Thread safety: every method takes the same mutex. Acquire never waits
// for a reclaim.
type BufferPool struct {
	dev backend.Device
	cfg PoolConfig

	mu      sync.Mutex
	gen     uint64
	current []*PooledBuffer
	queue   []generation
	free    []*PooledBuffer

	// drained is the highest generation id discarded by Drain; late
	// completions for it are ignored.
	drained uint64

	allocated, reused uint64
}

// NewBufferPool creates a pool allocating from dev.
func NewBufferPool(dev backend.Device, cfg PoolConfig) *BufferPool {
	return &BufferPool{
		dev: dev,
		cfg: cfg,
		gen: 1,
	}
}

func (p *BufferPool) align(size uint64) uint64 {
	a := p.cfg.Alignment
	if a <= 1 {
		return size
	}
	return (size + a - 1) / a * a
}

// Acquire returns a buffer of at least size bytes, appended to the current
// generation. The smallest sufficient free buffer is reused; otherwise a new
// one is allocated.
func (p *BufferPool) Acquire(size uint64) (*PooledBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("gfx: acquire: %w: zero size", ErrInvalidArgument)
	}
	size = p.align(size)

	p.mu.Lock()
	best := -1
	for i, b := range p.free {
		if b.size >= size && (best < 0 || b.size < p.free[best].size) {
			best = i
		}
	}
	if best >= 0 {
		b := p.free[best]
		p.free = slices.Delete(p.free, best, best+1)
		p.current = append(p.current, b)
		p.reused++
		p.mu.Unlock()
		return b, nil
	}
	p.mu.Unlock()

	buf, err := p.dev.NewBuffer(&backend.BufferDescriptor{
		Label:   "gfx constants",
		Size:    size,
		Usage:   gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		Storage: backend.StorageShared,
	})
	if err != nil {
		return nil, err
	}
	b := &PooledBuffer{buf: buf, size: size}

	p.mu.Lock()
	p.current = append(p.current, b)
	p.allocated++
	p.mu.Unlock()
	return b, nil
}

// SubmitGeneration queues the current generation and starts a new one.
// It returns the id of the queued generation, to be passed to Reclaim.
func (p *BufferPool) SubmitGeneration() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.gen
	p.queue = append(p.queue, generation{id: id, bufs: p.current})
	p.current = nil
	p.gen++
	slogger().Debug("gfx: buffer generation submitted", "generation", id, "queued", len(p.queue))
	return id
}

// Reclaim returns the oldest queued generations up to and including id to
// the free list. Generations complete in order, so this is FIFO.
func (p *BufferPool) Reclaim(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id <= p.drained {
		return
	}
	n := 0
	for n < len(p.queue) && p.queue[n].id <= id {
		p.free = append(p.free, p.queue[n].bufs...)
		n++
	}
	if n == 0 {
		return
	}
	p.queue = slices.Delete(p.queue, 0, n)

	if p.cfg.MaxFree > 0 && len(p.free) > p.cfg.MaxFree {
		drop := len(p.free) - p.cfg.MaxFree
		for _, b := range p.free[:drop] {
			b.buf.Destroy()
		}
		p.free = slices.Delete(p.free, 0, drop)
	}
	slogger().Debug("gfx: buffer generation reclaimed", "generation", id, "free", len(p.free))
}

// Drain destroys every buffer the pool owns, including outstanding
// generations. Used on device loss and close.
func (p *BufferPool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, g := range p.queue {
		for _, b := range g.bufs {
			b.buf.Destroy()
		}
	}
	for _, b := range p.current {
		b.buf.Destroy()
	}
	for _, b := range p.free {
		b.buf.Destroy()
	}
	p.queue = nil
	p.current = nil
	p.free = nil
	p.drained = p.gen
	p.gen++
}

// Generation returns the id of the generation being recorded.
func (p *BufferPool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Stats returns a snapshot of the pool counters.
func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Allocated:   p.allocated,
		Reused:      p.reused,
		Free:        len(p.free),
		InUse:       len(p.current),
		Outstanding: len(p.queue),
		Generation:  p.gen,
	}
}
