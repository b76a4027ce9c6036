package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/cache"
)

const (
	// maxTextureUnits caps the texture/sampler pairs of the fragment stage.
	maxTextureUnits = 8

	// copyPitchAlignment is the row alignment of texture-buffer copies.
	copyPitchAlignment = 256

	pollInterval = 200 * time.Microsecond

	defaultPipelineVariants = 16
	textureLayoutCacheSize  = 32
)

// Config controls how a native device is opened.
type Config struct {
	backend.Config

	// PreferDiscrete selects a discrete GPU over integrated ones when
	// AdapterIndex is negative.
	PreferDiscrete bool

	// MaxPipelineVariants bounds the native pipelines cached per
	// RenderPipeline. Zero means 16.
	MaxPipelineVariants int
}

func (c Config) pipelineVariants() int {
	if c.MaxPipelineVariants <= 0 {
		return defaultPipelineVariants
	}
	return c.MaxPipelineVariants
}

// Device is a gfx backend device backed by a HAL device and queue.
type Device struct {
	name   string
	cfg    Config
	dev    hal.Device
	queue  hal.Queue
	limits gputypes.Limits

	// instance is set when the device was opened by this package and is
	// destroyed on Close. External devices are left alone.
	instance hal.Instance
	external bool

	uniformLayout  hal.BindGroupLayout
	textureLayouts *cache.Cache[textureLayoutKey, hal.BindGroupLayout]

	placeholder    *Texture
	defaultSampler hal.Sampler
	zeroUniform    hal.Buffer

	// retired objects are destroyed once the next submission completes.
	retireMu sync.Mutex
	retired  []func(hal.Device)

	submitMu    sync.Mutex
	completions chan pending
	inflight    sync.WaitGroup
	closeOnce   sync.Once
	closed      atomic.Bool
	lost        atomic.Bool
}

// pending is a submitted command buffer awaiting completion.
type pending struct {
	index   uint64
	err     error
	fn      func(error)
	cleanup func()
}

// NewFromHAL wraps an opened HAL device and queue. The device is not
// destroyed by Close unless it was opened through Backend.Open.
func NewFromHAL(dev hal.Device, queue hal.Queue, name string, limits gputypes.Limits, cfg Config) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, backend.ErrNoDevice
	}
	d := &Device{
		name:        name,
		cfg:         cfg,
		dev:         dev,
		queue:       queue,
		limits:      limits,
		external:    true,
		completions: make(chan pending, 64),
	}
	d.textureLayouts = cache.New(textureLayoutCacheSize, func(_ textureLayoutKey, l hal.BindGroupLayout) {
		d.retire(func(dev hal.Device) { dev.DestroyBindGroupLayout(l) })
	})
	if err := d.initShared(); err != nil {
		d.destroyShared()
		return nil, err
	}
	go d.complete()
	slogger().Info("native device opened", "adapter", name, "textureUnits", d.textureUnits())
	return d, nil
}

// initShared creates the objects every draw may bind.
func (d *Device) initShared() error {
	var err error
	d.uniformLayout, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "gfx_uniforms",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("native: uniform layout: %w", mapErr(err))
	}

	d.zeroUniform, err = d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "gfx_zero_uniforms",
		Size:  copyPitchAlignment,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: zero uniforms: %w", mapErr(err))
	}
	if err := d.queue.WriteBuffer(d.zeroUniform, 0, make([]byte, copyPitchAlignment)); err != nil {
		return fmt.Errorf("native: zero uniforms: %w", mapErr(err))
	}

	tex, err := d.newTexture(&backend.TextureDescriptor{
		Label:     "gfx_placeholder",
		Width:     1,
		Height:    1,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     backend.TextureUsageSampled,
		Dimension: gputypes.TextureDimension2D,
	})
	if err != nil {
		return err
	}
	d.placeholder = tex
	if err := tex.Replace(0, backend.Rect2D(0, 0, 1, 1), []byte{0, 0, 0, 0xff}, 4); err != nil {
		return err
	}

	d.defaultSampler, err = d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "gfx_default_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("native: default sampler: %w", mapErr(err))
	}
	return nil
}

func (d *Device) destroyShared() {
	if d.textureLayouts != nil {
		d.textureLayouts.Purge()
	}
	for _, fn := range d.takeRetired() {
		fn(d.dev)
	}
	if d.uniformLayout != nil {
		d.dev.DestroyBindGroupLayout(d.uniformLayout)
		d.uniformLayout = nil
	}
	if d.zeroUniform != nil {
		d.dev.DestroyBuffer(d.zeroUniform)
		d.zeroUniform = nil
	}
	if d.placeholder != nil {
		d.placeholder.Destroy()
		d.placeholder = nil
	}
	if d.defaultSampler != nil {
		d.dev.DestroySampler(d.defaultSampler)
		d.defaultSampler = nil
	}
}

// Name describes the adapter.
func (d *Device) Name() string { return d.name }

func (d *Device) textureUnits() int {
	n := maxTextureUnits
	if s := int(d.limits.MaxSampledTexturesPerShaderStage); s > 0 && s < n {
		n = s
	}
	if s := int(d.limits.MaxSamplersPerShaderStage); s > 0 && s < n {
		n = s
	}
	return n
}

// Limits reports device capabilities.
func (d *Device) Limits() backend.Limits {
	return backend.Limits{
		MaxTextureSize:  int(d.limits.MaxTextureDimension2D),
		MaxTextureUnits: d.textureUnits(),
		MaxVertexSlots:  int(d.limits.MaxVertexBuffers),
		CanReadBack:     true,
	}
}

// SetLogger implements backend.LoggerSetter.
func (d *Device) SetLogger(l *slog.Logger) { SetLogger(l) }

// HAL returns the underlying HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// Lost reports whether a submission has failed with device loss.
func (d *Device) Lost() bool { return d.lost.Load() }

// NewBuffer creates a HAL buffer.
func (d *Device) NewBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	return d.newBuffer(desc)
}

// NewTexture creates a HAL texture.
func (d *Device) NewTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	return d.newTexture(desc)
}

// NewSampler creates a HAL sampler.
func (d *Device) NewSampler(desc *backend.SamplerDescriptor) (backend.Sampler, error) {
	return d.newSampler(desc)
}

// NewFunction compiles a shader stage to a HAL shader module.
func (d *Device) NewFunction(desc *backend.FunctionDescriptor) (backend.Function, error) {
	return d.newFunction(desc)
}

// NewRenderPipeline records a pipeline description. Native pipelines are
// created on first draw.
func (d *Device) NewRenderPipeline(desc *backend.RenderPipelineDescriptor) (backend.RenderPipeline, error) {
	return d.newPipeline(desc)
}

// NewDepthStencilState records a depth-stencil configuration.
func (d *Device) NewDepthStencilState(desc *backend.DepthStencilDescriptor) (backend.DepthStencilState, error) {
	return &DepthStencilState{desc: *desc}, nil
}

// NewCommandBuffer starts recording on a new HAL command encoder.
func (d *Device) NewCommandBuffer() (backend.CommandBuffer, error) {
	if d.closed.Load() {
		return nil, backend.ErrDestroyed
	}
	if d.lost.Load() {
		return nil, backend.ErrDeviceLost
	}
	enc, err := d.beginEncoder("gfx_commands")
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{dev: d, enc: enc}, nil
}

func (d *Device) beginEncoder(label string) (hal.CommandEncoder, error) {
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", mapErr(err))
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", mapErr(err))
	}
	return enc, nil
}

// Close waits for outstanding completions and releases the device.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.submitMu.Lock()
		d.closed.Store(true)
		d.submitMu.Unlock()
		done := make(chan struct{})
		go func() {
			d.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(d.cfg.WaitTimeout()):
			err = backend.ErrTimeout
		}
		close(d.completions)

		if werr := d.dev.WaitIdle(); werr != nil && err == nil {
			err = mapErr(werr)
		}
		d.destroyShared()
		if !d.external {
			d.dev.Destroy()
			if d.instance != nil {
				d.instance.Destroy()
			}
		}
		slogger().Info("native device closed", "adapter", d.name)
	})
	return err
}

// submit ends enc and submits it. The completion is queued under the same
// lock as the submission so callbacks run in submission order. A non-nil
// reject discards enc and reports reject through fn instead.
func (d *Device) submit(enc hal.CommandEncoder, fn func(error), cleanup func(), reject error) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	if retired := d.takeRetired(); len(retired) > 0 {
		own := cleanup
		cleanup = func() {
			if own != nil {
				own()
			}
			for _, destroy := range retired {
				destroy(d.dev)
			}
		}
	}

	switch {
	case reject != nil:
	case d.closed.Load():
		reject = backend.ErrDestroyed
	case d.lost.Load():
		reject = backend.ErrDeviceLost
	}
	if reject != nil {
		enc.DiscardEncoding()
		return d.rejectLocked(reject, fn, cleanup)
	}

	cmd, err := enc.EndEncoding()
	if err != nil {
		return d.rejectLocked(fmt.Errorf("native: end encoding: %w", mapErr(err)), fn, cleanup)
	}
	index, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		d.dev.FreeCommandBuffer(cmd)
		err = mapErr(err)
		if errors.Is(err, backend.ErrDeviceLost) {
			d.lost.Store(true)
			slogger().Warn("native device lost", "adapter", d.name)
		}
		return d.rejectLocked(fmt.Errorf("native: submit: %w", err), fn, cleanup)
	}
	free := func() {
		d.dev.FreeCommandBuffer(cmd)
		if cleanup != nil {
			cleanup()
		}
	}
	d.enqueue(pending{index: index, fn: fn, cleanup: free})
	return nil
}

// rejectLocked reports err for work that never reached the queue, after
// every earlier submission. Once closed there is no completion goroutine,
// so the callback runs inline.
func (d *Device) rejectLocked(err error, fn func(error), cleanup func()) error {
	if d.closed.Load() {
		if cleanup != nil {
			cleanup()
		}
		if fn != nil {
			fn(err)
		}
		return err
	}
	d.enqueue(pending{err: err, fn: fn, cleanup: cleanup})
	return err
}

// retire defers destroying an object that recorded work may still use.
func (d *Device) retire(fn func(hal.Device)) {
	d.retireMu.Lock()
	d.retired = append(d.retired, fn)
	d.retireMu.Unlock()
}

func (d *Device) takeRetired() []func(hal.Device) {
	d.retireMu.Lock()
	defer d.retireMu.Unlock()
	r := d.retired
	d.retired = nil
	return r
}

func (d *Device) enqueue(p pending) {
	d.inflight.Add(1)
	d.completions <- p
}

// complete delivers completion callbacks in submission order.
func (d *Device) complete() {
	for p := range d.completions {
		err := p.err
		if err == nil {
			err = d.waitIndex(p.index)
		}
		// Resources of a submission that timed out may still be in use.
		if p.cleanup != nil && !errors.Is(err, backend.ErrTimeout) {
			p.cleanup()
		}
		if p.fn != nil {
			p.fn(err)
		}
		d.inflight.Done()
	}
}

// waitIndex blocks until the queue has completed submission index.
func (d *Device) waitIndex(index uint64) error {
	deadline := time.Now().Add(d.cfg.WaitTimeout())
	for d.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return backend.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// submitWait submits enc and blocks until the GPU finished it.
func (d *Device) submitWait(enc hal.CommandEncoder) error {
	done := make(chan error, 1)
	if err := d.submit(enc, func(err error) { done <- err }, nil, nil); err != nil {
		<-done
		return err
	}
	return <-done
}

// mapErr translates HAL errors to backend errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %v", backend.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %v", backend.ErrNoDeviceMemory, err)
	case errors.Is(err, hal.ErrTimeout):
		return fmt.Errorf("%w: %v", backend.ErrTimeout, err)
	default:
		return err
	}
}
