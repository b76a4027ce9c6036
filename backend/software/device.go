// Package software implements the gfx backend interface on the CPU.
//
// Buffers are byte slices and textures are tightly packed texel arrays.
// Committed command buffers are executed on the committing goroutine by a
// barycentric rasterizer that honors blending, depth and stencil testing,
// culling, viewport and scissor. Completion callbacks are delivered in
// submission order from a dedicated goroutine, the same way a GPU reports
// completion, so code that reclaims memory on completion behaves as it
// would on hardware.
//
// The backend registers itself as "software" on import.
package software

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/parallel"
)

const (
	maxTextureSize  = 16384
	maxTextureUnits = 16
	maxVertexSlots  = 16
)

func init() {
	backend.Register(backend.BackendSoftware, func() backend.Backend {
		return Backend{}
	})
}

// Backend opens software devices.
type Backend struct{}

// Name returns the backend identifier.
func (Backend) Name() string { return backend.BackendSoftware }

// Open creates a software device. The adapter index is ignored.
func (Backend) Open(cfg backend.Config) (backend.Device, error) {
	return NewDevice(cfg), nil
}

// Device is a CPU device.
type Device struct {
	cfg  backend.Config
	pool *parallel.WorkerPool

	completions chan completion
	pending     sync.WaitGroup
	closeOnce   sync.Once
	closed      bool

	// lost makes every later commit fail, for device-loss testing.
	lostMu sync.Mutex
	lost   bool
}

type completion struct {
	fn  func(error)
	err error
}

// NewDevice creates a software device with its worker pool and completion
// goroutine.
func NewDevice(cfg backend.Config) *Device {
	d := &Device{
		cfg:         cfg,
		pool:        parallel.NewWorkerPool(0),
		completions: make(chan completion, 64),
	}
	go d.complete()
	slogger().Info("software device opened", "workers", d.pool.Workers())
	return d
}

// complete delivers completion callbacks in submission order.
func (d *Device) complete() {
	for c := range d.completions {
		if c.fn != nil {
			c.fn(c.err)
		}
		d.pending.Done()
	}
}

// Name describes the device.
func (d *Device) Name() string { return "software rasterizer" }

// Limits reports device capabilities.
func (d *Device) Limits() backend.Limits {
	return backend.Limits{
		MaxTextureSize:  maxTextureSize,
		MaxTextureUnits: maxTextureUnits,
		MaxVertexSlots:  maxVertexSlots,
		CanReadBack:     true,
	}
}

// SetLogger implements backend.LoggerSetter.
func (d *Device) SetLogger(l *slog.Logger) { setLogger(l) }

// Lose simulates device loss: every later commit fails with
// backend.ErrDeviceLost until Restore is called.
func (d *Device) Lose() {
	d.lostMu.Lock()
	d.lost = true
	d.lostMu.Unlock()
	slogger().Warn("software device lost")
}

// Restore clears a simulated device loss.
func (d *Device) Restore() {
	d.lostMu.Lock()
	d.lost = false
	d.lostMu.Unlock()
}

func (d *Device) isLost() bool {
	d.lostMu.Lock()
	defer d.lostMu.Unlock()
	return d.lost
}

// NewBuffer allocates a byte-slice buffer.
func (d *Device) NewBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("software: buffer %q: zero size", desc.Label)
	}
	if desc.Storage == backend.StoragePrivate && desc.Contents == nil {
		return nil, fmt.Errorf("software: private buffer %q needs contents", desc.Label)
	}
	b := &Buffer{
		data:    make([]byte, desc.Size),
		storage: desc.Storage,
	}
	copy(b.data, desc.Contents)
	slogger().Debug("buffer created", "label", desc.Label, "size", desc.Size)
	return b, nil
}

// NewTexture allocates texel storage for every level.
func (d *Device) NewTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	return newTexture(desc)
}

// NewSampler creates a sampler.
func (d *Device) NewSampler(desc *backend.SamplerDescriptor) (backend.Sampler, error) {
	return &Sampler{desc: *desc}, nil
}

// NewFunction resolves the CPU program for a shader stage.
func (d *Device) NewFunction(desc *backend.FunctionDescriptor) (backend.Function, error) {
	return newFunction(desc)
}

// NewRenderPipeline links two functions.
func (d *Device) NewRenderPipeline(desc *backend.RenderPipelineDescriptor) (backend.RenderPipeline, error) {
	return newPipeline(desc)
}

// NewDepthStencilState records a depth-stencil configuration.
func (d *Device) NewDepthStencilState(desc *backend.DepthStencilDescriptor) (backend.DepthStencilState, error) {
	return &DepthStencilState{desc: *desc}, nil
}

// NewCommandBuffer starts a command buffer.
func (d *Device) NewCommandBuffer() (backend.CommandBuffer, error) {
	if d.closed {
		return nil, backend.ErrDestroyed
	}
	return &CommandBuffer{dev: d}, nil
}

// Close waits for outstanding completions and stops the device goroutines.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed = true
		done := make(chan struct{})
		go func() {
			d.pending.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(d.cfg.WaitTimeout()):
			err = backend.ErrTimeout
		}
		close(d.completions)
		d.pool.Close()
		slogger().Info("software device closed")
	})
	return err
}

// submit queues a completion in order.
func (d *Device) submit(fn func(error), err error) {
	d.pending.Add(1)
	d.completions <- completion{fn: fn, err: err}
}
