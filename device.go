package gfx

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// ClearState is a pending clear for the bound render target.
type ClearState struct {
	Flags   ClearFlags
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

type clearEntry struct {
	target *Texture
	state  ClearState
}

// retiredObject is a native object destroyed once the generation that
// may still reference it has completed.
type retiredObject struct {
	gen     uint64
	destroy func()
}

// Device owns a backend device and every resource created through it.
//
// All methods except those of the BufferPool must be called from a single
// goroutine. Backend completion callbacks run on their own goroutine and
// only touch the pool and atomic counters.
type Device struct {
	opts        deviceOptions
	backend     backend.Device
	log         *slog.Logger
	limits      backend.Limits
	maxTextures int

	registry registry
	state    *StateCache
	pool     *BufferPool

	swapChain    *SwapChain
	vertexBuffer *VertexBuffer
	indexBuffer  *IndexBuffer
	vertexShader *Shader
	pixelShader  *Shader
	renderTarget *Texture
	zstencil     *ZStencil
	textures     []*Texture
	samplers     []*Sampler

	clearStack []clearEntry

	projStack     []Matrix4
	proj          Matrix4
	view          Matrix4
	world         Matrix4
	matricesDirty bool

	ctx     drawContext
	inScene bool

	inflight  sync.WaitGroup
	submitted uint64
	completed atomic.Uint64
	graveyard []retiredObject

	closed bool
}

// NewDevice opens a backend device and wraps it.
//
// Without WithBackend or WithBackendName the highest-priority registered
// backend that opens successfully is used.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	dev := o.device
	if dev == nil {
		cfg := backend.Config{
			AdapterIndex: o.adapterIndex,
			Debug:        o.debug,
			Timeout:      o.frameTimeout,
		}
		var err error
		if o.backendName != "" {
			dev, err = backend.Open(o.backendName, cfg)
		} else {
			dev, err = backend.OpenDefault(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("gfx: open device: %w", err)
		}
	}
	propagateLogger(dev, log)

	limits := dev.Limits()
	maxTextures := o.maxTextures
	if limits.MaxTextureUnits > 0 {
		maxTextures = min(maxTextures, limits.MaxTextureUnits)
	}

	d := &Device{
		opts:          o,
		backend:       dev,
		log:           log,
		limits:        limits,
		maxTextures:   maxTextures,
		state:         newStateCache(dev, o.pipelineCache),
		pool:          NewBufferPool(dev, o.pool),
		textures:      make([]*Texture, maxTextures),
		samplers:      make([]*Sampler, maxTextures),
		proj:          Identity4(),
		view:          Identity4(),
		world:         Identity4(),
		matricesDirty: true,
	}
	d.ctx.init(maxTextures)

	log.Info("gfx: device opened", "backend", dev.Name(), "maxTextures", maxTextures)
	return d, nil
}

// Backend returns the backend device.
func (d *Device) Backend() backend.Device { return d.backend }

// Limits returns the backend limits.
func (d *Device) Limits() backend.Limits { return d.limits }

// MaxTextures returns the number of texture and sampler slots.
func (d *Device) MaxTextures() int { return d.maxTextures }

// StateCache returns the render-state cache.
func (d *Device) StateCache() *StateCache { return d.state }

// Pool returns the constant-upload buffer pool.
func (d *Device) Pool() *BufferPool { return d.pool }

// NumObjects returns the number of registered resources.
func (d *Device) NumObjects() int { return d.registry.Len() }

// PassState returns the draw pipeline state.
func (d *Device) PassState() PassState { return d.ctx.pass }

// =============================================================================
// Resource creation
// =============================================================================

// CreateTexture creates a texture and uploads its data.
func (d *Device) CreateTexture(desc *TextureDesc) (*Texture, error) {
	if d.closed {
		return nil, contractErr("create texture", ErrClosed)
	}
	t, err := newTexture(d, desc)
	if err != nil {
		return nil, err
	}
	if err := t.createNative(); err != nil {
		return nil, err
	}
	t.handle = d.registry.add(t)
	d.log.Debug("gfx: texture created", "label", t.label, "type", t.typ,
		"width", t.width, "height", t.height, "format", t.format, "levels", t.levels)
	return t, nil
}

// CreateVertexBuffer creates a vertex buffer owning a copy of data.
func (d *Device) CreateVertexBuffer(label string, data *VertexData, dynamic bool) (*VertexBuffer, error) {
	if d.closed {
		return nil, contractErr("create vertex buffer", ErrClosed)
	}
	vb, err := newVertexBuffer(d, label, data, dynamic)
	if err != nil {
		return nil, err
	}
	if err := vb.ensure(); err != nil {
		return nil, err
	}
	vb.handle = d.registry.add(vb)
	d.log.Debug("gfx: vertex buffer created", "label", label, "vertices", vb.NumVertices(), "dynamic", dynamic)
	return vb, nil
}

// CreateIndexBuffer creates an index buffer owning a copy of indices.
func (d *Device) CreateIndexBuffer(label string, typ IndexType, indices []uint32, dynamic bool) (*IndexBuffer, error) {
	if d.closed {
		return nil, contractErr("create index buffer", ErrClosed)
	}
	ib, err := newIndexBuffer(d, label, typ, indices, dynamic)
	if err != nil {
		return nil, err
	}
	if err := ib.ensure(); err != nil {
		return nil, err
	}
	ib.handle = d.registry.add(ib)
	d.log.Debug("gfx: index buffer created", "label", label, "type", typ, "count", len(indices))
	return ib, nil
}

// CreateZStencil creates a depth-stencil surface.
func (d *Device) CreateZStencil(width, height int, format ZStencilFormat) (*ZStencil, error) {
	if d.closed {
		return nil, contractErr("create zstencil", ErrClosed)
	}
	z, err := newZStencil(d, width, height, format)
	if err != nil {
		return nil, err
	}
	if err := z.createNative(); err != nil {
		return nil, err
	}
	z.handle = d.registry.add(z)
	d.log.Debug("gfx: zstencil created", "width", width, "height", height, "format", format)
	return z, nil
}

// CreateStageSurface creates a CPU-readable copy target.
func (d *Device) CreateStageSurface(width, height int, format ColorFormat) (*StageSurface, error) {
	if d.closed {
		return nil, contractErr("create stage surface", ErrClosed)
	}
	s, err := newStageSurface(d, width, height, format)
	if err != nil {
		return nil, err
	}
	if err := s.createNative(); err != nil {
		return nil, err
	}
	s.handle = d.registry.add(s)
	return s, nil
}

// CreateSampler creates a sampler state.
func (d *Device) CreateSampler(info SamplerInfo) (*Sampler, error) {
	if d.closed {
		return nil, contractErr("create sampler", ErrClosed)
	}
	s := &Sampler{dev: d, info: info}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	s.handle = d.registry.add(s)
	return s, nil
}

// CreateVertexShader compiles a vertex shader.
func (d *Device) CreateVertexShader(desc *ShaderDesc) (*Shader, error) {
	return d.createShader(ShaderVertex, desc)
}

// CreatePixelShader compiles a pixel shader.
func (d *Device) CreatePixelShader(desc *ShaderDesc) (*Shader, error) {
	return d.createShader(ShaderPixel, desc)
}

func (d *Device) createShader(kind ShaderKind, desc *ShaderDesc) (*Shader, error) {
	if d.closed {
		return nil, contractErr("create shader", ErrClosed)
	}
	info := desc.Info
	if info == nil && d.opts.reflector != nil {
		var err error
		info, err = d.opts.reflector.Reflect(kind, desc.Source)
		if err != nil {
			return nil, &CompileError{Stage: kind, File: desc.File, Diagnostic: err.Error(), Err: err}
		}
	}
	if info == nil {
		info = &ShaderInfo{}
	}
	s, err := newShader(d, kind, desc, info)
	if err != nil {
		return nil, err
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	s.handle = d.registry.add(s)
	d.log.Debug("gfx: shader created", "file", desc.File, "stage", kind,
		"params", len(s.params), "constants", s.constSize)
	return s, nil
}

// CreateSwapChain binds a presentation surface to the device.
func (d *Device) CreateSwapChain(surface Surface) (*SwapChain, error) {
	if d.closed {
		return nil, contractErr("create swap chain", ErrClosed)
	}
	if surface == nil {
		return nil, contractErr("create swap chain", ErrInvalidArgument)
	}
	sc := &SwapChain{dev: d, surface: surface}
	sc.handle = d.registry.add(sc)
	return sc, nil
}

// =============================================================================
// Bindings
// =============================================================================

// LoadSwapChain selects the swap chain rendered to when no render target
// texture is bound.
func (d *Device) LoadSwapChain(sc *SwapChain) error {
	if sc != nil && sc.destroyed {
		return contractErr("load swap chain", ErrReleased)
	}
	if sc == d.swapChain {
		return nil
	}
	if d.renderTarget == nil {
		if err := d.endTargetSpan(); err != nil {
			return err
		}
	}
	d.swapChain = sc
	return nil
}

// SwapChain returns the bound swap chain.
func (d *Device) SwapChain() *SwapChain { return d.swapChain }

// SetRenderTarget binds a render target and optional depth-stencil
// surface. A nil texture renders to the swap chain. Changing the target
// applies any pending clear and ends the clear-state scope.
func (d *Device) SetRenderTarget(tex *Texture, zs *ZStencil) error {
	const op = "set render target"
	if tex != nil {
		if tex.destroyed || tex.native == nil {
			return contractErr(op, ErrReleased)
		}
		if !tex.IsRenderTarget() {
			return contractErr(op, fmt.Errorf("%w: texture %q is not a render target", ErrInvalidArgument, tex.label))
		}
	}
	if zs != nil {
		if zs.destroyed || zs.native == nil {
			return contractErr(op, ErrReleased)
		}
		if tex != nil && (zs.width != tex.width || zs.height != tex.height) {
			return contractErr(op, fmt.Errorf("%w: zstencil %dx%d does not match target %dx%d",
				ErrInvalidArgument, zs.width, zs.height, tex.width, tex.height))
		}
	}
	if tex == d.renderTarget && zs == d.zstencil {
		return nil
	}
	if err := d.endTargetSpan(); err != nil {
		return err
	}
	d.renderTarget = tex
	d.zstencil = zs
	return nil
}

// RenderTarget returns the bound render target texture.
func (d *Device) RenderTarget() *Texture { return d.renderTarget }

// ZStencilTarget returns the bound depth-stencil surface.
func (d *Device) ZStencilTarget() *ZStencil { return d.zstencil }

// currentTarget returns the bound texture or the swap chain drawable.
func (d *Device) currentTarget() (*Texture, error) {
	if d.renderTarget != nil {
		return d.renderTarget, nil
	}
	if d.swapChain != nil {
		return d.swapChain.Target()
	}
	return nil, nil
}

// LoadVertexBuffer binds the vertex buffer used by draws.
func (d *Device) LoadVertexBuffer(vb *VertexBuffer) error {
	if vb != nil && vb.destroyed {
		return contractErr("load vertex buffer", ErrReleased)
	}
	d.vertexBuffer = vb
	return nil
}

// VertexBuffer returns the bound vertex buffer.
func (d *Device) VertexBuffer() *VertexBuffer { return d.vertexBuffer }

// LoadIndexBuffer binds the index buffer used by DrawIndexed.
func (d *Device) LoadIndexBuffer(ib *IndexBuffer) error {
	if ib != nil && ib.destroyed {
		return contractErr("load index buffer", ErrReleased)
	}
	d.indexBuffer = ib
	return nil
}

// IndexBuffer returns the bound index buffer.
func (d *Device) IndexBuffer() *IndexBuffer { return d.indexBuffer }

// LoadVertexShader binds the vertex shader.
func (d *Device) LoadVertexShader(s *Shader) error {
	if s != nil {
		if s.destroyed {
			return contractErr("load vertex shader", ErrReleased)
		}
		if s.kind != ShaderVertex {
			return contractErr("load vertex shader", fmt.Errorf("%w: %s is a %s shader", ErrInvalidArgument, s.file, s.kind))
		}
	}
	d.vertexShader = s
	return nil
}

// VertexShader returns the bound vertex shader.
func (d *Device) VertexShader() *Shader { return d.vertexShader }

// LoadPixelShader binds the pixel shader.
func (d *Device) LoadPixelShader(s *Shader) error {
	if s != nil {
		if s.destroyed {
			return contractErr("load pixel shader", ErrReleased)
		}
		if s.kind != ShaderPixel {
			return contractErr("load pixel shader", fmt.Errorf("%w: %s is a %s shader", ErrInvalidArgument, s.file, s.kind))
		}
	}
	d.pixelShader = s
	return nil
}

// PixelShader returns the bound pixel shader.
func (d *Device) PixelShader() *Shader { return d.pixelShader }

// LoadTexture binds tex to a texture slot. A nil texture clears the slot.
func (d *Device) LoadTexture(tex *Texture, slot int) error {
	if slot < 0 || slot >= d.maxTextures {
		return contractErr("load texture", fmt.Errorf("%w: %d of %d", ErrInvalidSlot, slot, d.maxTextures))
	}
	if tex != nil && tex.destroyed {
		return contractErr("load texture", ErrReleased)
	}
	d.textures[slot] = tex
	return nil
}

// Texture returns the texture bound to slot, or nil.
func (d *Device) Texture(slot int) *Texture {
	if slot < 0 || slot >= d.maxTextures {
		return nil
	}
	return d.textures[slot]
}

// LoadSampler binds s to a sampler slot. A nil sampler clears the slot.
func (d *Device) LoadSampler(s *Sampler, slot int) error {
	if slot < 0 || slot >= d.maxTextures {
		return contractErr("load sampler", fmt.Errorf("%w: %d of %d", ErrInvalidSlot, slot, d.maxTextures))
	}
	if s != nil && s.destroyed {
		return contractErr("load sampler", ErrReleased)
	}
	d.samplers[slot] = s
	return nil
}

// =============================================================================
// Render state
// =============================================================================

// SetBlendState replaces the blend state.
func (d *Device) SetBlendState(s BlendState) { d.state.SetBlendState(s) }

// SetRasterState replaces the raster state.
func (d *Device) SetRasterState(s RasterState) { d.state.SetRasterState(s) }

// SetZStencilState replaces the depth-stencil state.
func (d *Device) SetZStencilState(s ZStencilState) { d.state.SetZStencilState(s) }

// EnableBlending toggles blending.
func (d *Device) EnableBlending(enable bool) {
	b := d.state.BlendState()
	b.Enabled = enable
	d.state.SetBlendState(b)
}

// BlendFunction sets the same factors for color and alpha.
func (d *Device) BlendFunction(src, dst gputypes.BlendFactor) {
	d.BlendFunctionSeparate(src, dst, src, dst)
}

// BlendFunctionSeparate sets color and alpha factors independently.
func (d *Device) BlendFunctionSeparate(srcColor, dstColor, srcAlpha, dstAlpha gputypes.BlendFactor) {
	b := d.state.BlendState()
	b.SrcColor, b.DstColor = srcColor, dstColor
	b.SrcAlpha, b.DstAlpha = srcAlpha, dstAlpha
	d.state.SetBlendState(b)
}

// BlendOperation sets the blend operation for color and alpha.
func (d *Device) BlendOperation(op gputypes.BlendOperation) {
	b := d.state.BlendState()
	b.ColorOp, b.AlphaOp = op, op
	d.state.SetBlendState(b)
}

// EnableColor sets the channel write mask.
func (d *Device) EnableColor(red, green, blue, alpha bool) {
	b := d.state.BlendState()
	b.WriteRed, b.WriteGreen, b.WriteBlue, b.WriteAlpha = red, green, blue, alpha
	d.state.SetBlendState(b)
}

// SetCullMode sets face culling.
func (d *Device) SetCullMode(mode gputypes.CullMode) {
	r := d.state.RasterState()
	r.Cull = mode
	d.state.SetRasterState(r)
}

// SetViewport sets the viewport in pixels. A zero-size viewport covers
// the whole render target.
func (d *Device) SetViewport(x, y, width, height int) {
	r := d.state.RasterState()
	r.Viewport = backend.Viewport{
		X: float32(x), Y: float32(y),
		Width: float32(width), Height: float32(height),
		MaxDepth: 1,
	}
	d.state.SetRasterState(r)
}

// SetScissorRect restricts rendering to rect. Nil disables scissoring.
func (d *Device) SetScissorRect(rect *backend.Rect) {
	r := d.state.RasterState()
	if rect == nil {
		r.ScissorEnabled = false
		r.Scissor = backend.Rect{}
	} else {
		r.ScissorEnabled = true
		r.Scissor = *rect
	}
	d.state.SetRasterState(r)
}

// EnableDepthTest toggles depth testing.
func (d *Device) EnableDepthTest(enable bool) {
	z := d.state.ZStencilState()
	z.DepthEnabled = enable
	d.state.SetZStencilState(z)
}

// EnableDepthWrite toggles depth writes.
func (d *Device) EnableDepthWrite(enable bool) {
	z := d.state.ZStencilState()
	z.DepthWrite = enable
	d.state.SetZStencilState(z)
}

// DepthFunction sets the depth comparison.
func (d *Device) DepthFunction(fn gputypes.CompareFunction) {
	z := d.state.ZStencilState()
	z.DepthFunc = fn
	d.state.SetZStencilState(z)
}

// EnableStencilTest toggles stencil testing.
func (d *Device) EnableStencilTest(enable bool) {
	z := d.state.ZStencilState()
	z.StencilEnabled = enable
	d.state.SetZStencilState(z)
}

// EnableStencilWrite toggles stencil writes.
func (d *Device) EnableStencilWrite(enable bool) {
	z := d.state.ZStencilState()
	z.StencilWrite = enable
	d.state.SetZStencilState(z)
}

// StencilFunction sets the stencil comparison.
func (d *Device) StencilFunction(fn gputypes.CompareFunction) {
	z := d.state.ZStencilState()
	z.StencilFunc = fn
	d.state.SetZStencilState(z)
}

// StencilOp sets the stencil operations for the front and back faces.
func (d *Device) StencilOp(front, back StencilSide) {
	z := d.state.ZStencilState()
	z.StencilFront, z.StencilBack = front, back
	d.state.SetZStencilState(z)
}

// =============================================================================
// Clear-state stack
// =============================================================================

// PushClearState queues a clear of the bound render target. The top entry
// is applied as the load action of the next pass on that target. Pushing
// without a bound target is a contract violation.
func (d *Device) PushClearState(s ClearState) error {
	target, err := d.currentTarget()
	if err != nil {
		return err
	}
	if target == nil {
		return contractErr("push clear state", ErrClearOutsideTarget)
	}
	d.clearStack = append(d.clearStack, clearEntry{target: target, state: s})
	return nil
}

// PopClearState discards the top clear state without applying it.
func (d *Device) PopClearState() error {
	n := len(d.clearStack)
	if n == 0 {
		return contractErr("pop clear state", ErrStackEmpty)
	}
	target, err := d.currentTarget()
	if err != nil {
		return err
	}
	if target == nil || d.clearStack[n-1].target != target {
		return contractErr("pop clear state", ErrClearOutsideTarget)
	}
	d.clearStack = d.clearStack[:n-1]
	return nil
}

// pendingClear pops and returns the top clear state if it belongs to target.
func (d *Device) pendingClear(target *Texture) (ClearState, bool) {
	n := len(d.clearStack)
	if n == 0 || d.clearStack[n-1].target != target {
		return ClearState{}, false
	}
	s := d.clearStack[n-1].state
	d.clearStack = d.clearStack[:n-1]
	return s, true
}

// =============================================================================
// Matrices
// =============================================================================

// SetProjectionMatrix replaces the projection matrix.
func (d *Device) SetProjectionMatrix(m Matrix4) {
	d.proj = m
	d.matricesDirty = true
}

// ProjectionMatrix returns the projection matrix.
func (d *Device) ProjectionMatrix() Matrix4 { return d.proj }

// PushProjection saves the projection matrix.
func (d *Device) PushProjection() {
	d.projStack = append(d.projStack, d.proj)
}

// PopProjection restores the last saved projection matrix.
func (d *Device) PopProjection() error {
	n := len(d.projStack)
	if n == 0 {
		return contractErr("pop projection", ErrStackEmpty)
	}
	d.SetProjectionMatrix(d.projStack[n-1])
	d.projStack = d.projStack[:n-1]
	return nil
}

// Ortho sets an orthographic projection.
func (d *Device) Ortho(left, right, top, bottom, near, far float32) {
	d.SetProjectionMatrix(Ortho(left, right, top, bottom, near, far))
}

// Frustum sets a perspective projection.
func (d *Device) Frustum(left, right, top, bottom, near, far float32) {
	d.SetProjectionMatrix(Frustum(left, right, top, bottom, near, far))
}

// SetViewMatrix replaces the view matrix.
func (d *Device) SetViewMatrix(m Matrix4) {
	d.view = m
	d.matricesDirty = true
}

// ViewMatrix returns the view matrix.
func (d *Device) ViewMatrix() Matrix4 { return d.view }

// SetWorldMatrix replaces the world matrix.
func (d *Device) SetWorldMatrix(m Matrix4) {
	d.world = m
	d.matricesDirty = true
}

// WorldMatrix returns the world matrix.
func (d *Device) WorldMatrix() Matrix4 { return d.world }

// ViewProjMatrix returns the combined projection * view * world transform
// uploaded to vertex shaders as ViewProj.
func (d *Device) ViewProjMatrix() Matrix4 {
	return d.proj.Multiply(d.view).Multiply(d.world)
}

// =============================================================================
// Submission
// =============================================================================

// BeginScene starts recording draws. A render target or swap chain must
// be bound.
func (d *Device) BeginScene() error {
	const op = "begin scene"
	if d.closed {
		return contractErr(op, ErrClosed)
	}
	if d.inScene {
		return nil
	}
	target, err := d.currentTarget()
	if err != nil {
		return fmt.Errorf("gfx: %s: %w", op, err)
	}
	if target == nil {
		return contractErr(op, ErrNoRenderTarget)
	}
	d.inScene = true
	d.ctx.pass = StateRecordingPass
	d.collectGarbage()
	return nil
}

// EndScene ends recording and submits the recorded work.
func (d *Device) EndScene() error {
	if !d.inScene {
		return contractErr("end scene", ErrNotRecording)
	}
	d.inScene = false
	return d.Flush()
}

// Flush applies a pending clear, ends the open pass and commits the
// command buffer. The constants acquired for it are reclaimed when the
// backend reports completion.
func (d *Device) Flush() error {
	if d.closed {
		return contractErr("flush", ErrClosed)
	}
	if err := d.settlePass(); err != nil {
		return err
	}
	dc := &d.ctx
	if dc.cmd == nil {
		if !d.inScene {
			dc.pass = StateIdle
		}
		d.collectGarbage()
		return nil
	}

	cmd := dc.cmd
	dc.cmd = nil
	dc.pass = StateSubmitted
	gen := d.pool.SubmitGeneration()
	d.submitted = gen
	d.inflight.Add(1)
	err := cmd.Commit(func(err error) {
		d.pool.Reclaim(gen)
		d.completed.Store(gen)
		if err != nil {
			d.log.Warn("gfx: submission failed", "generation", gen, "err", err)
		}
		d.inflight.Done()
	})
	dc.pass = StateIdle
	if d.inScene {
		dc.pass = StateRecordingPass
	}
	d.collectGarbage()
	if err != nil {
		return fmt.Errorf("gfx: flush: %w", err)
	}
	return nil
}

// Present submits outstanding work and presents the swap chain drawable.
func (d *Device) Present() error {
	var err error
	if d.inScene {
		err = d.EndScene()
	} else {
		err = d.Flush()
	}
	if err != nil {
		return err
	}
	if d.swapChain == nil {
		return contractErr("present", ErrNoRenderTarget)
	}
	if d.renderTarget == nil {
		d.clearStack = d.clearStack[:0]
	}
	if err := d.swapChain.present(); err != nil {
		return fmt.Errorf("gfx: present: %w", err)
	}
	return nil
}

// waitIdle waits for every submission to complete, up to the frame timeout.
func (d *Device) waitIdle() error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(d.opts.frameTimeout):
		return fmt.Errorf("gfx: wait for GPU: %w", backend.ErrTimeout)
	}
}

// retire schedules destroy for when the GPU can no longer use the object.
func (d *Device) retire(destroy func()) {
	d.graveyard = append(d.graveyard, retiredObject{gen: d.pool.Generation(), destroy: destroy})
}

// collectGarbage destroys retired objects whose generation completed.
func (d *Device) collectGarbage() {
	if len(d.graveyard) == 0 {
		return
	}
	done := d.completed.Load()
	idle := d.ctx.cmd == nil && done >= d.submitted
	keep := d.graveyard[:0]
	for _, r := range d.graveyard {
		if idle || r.gen <= done {
			r.destroy()
			continue
		}
		keep = append(keep, r)
	}
	clear(d.graveyard[len(keep):])
	d.graveyard = keep
}

// buryAll destroys every retired object immediately.
func (d *Device) buryAll() {
	for _, r := range d.graveyard {
		r.destroy()
	}
	d.graveyard = nil
}

// =============================================================================
// Copies
// =============================================================================

// CopyTex copies a w x h region of src at (srcX, srcY) to dst at
// (dstX, dstY). A zero w or h extends to the source edge. Regions that
// exceed either texture are an error, never clamped.
func (d *Device) CopyTex(dst *Texture, dstX, dstY int, src *Texture, srcX, srcY, w, h int) error {
	const op = "copy texture"
	if d.closed {
		return contractErr(op, ErrClosed)
	}
	if dst == nil || src == nil {
		return contractErr(op, ErrInvalidArgument)
	}
	if dst.destroyed || src.destroyed || dst.native == nil || src.native == nil {
		return contractErr(op, ErrReleased)
	}
	if w == 0 {
		w = src.width - srcX
	}
	if h == 0 {
		h = src.height - srcY
	}
	if !inBounds(src, srcX, srcY, w, h) || !inBounds(dst, dstX, dstY, w, h) {
		return contractErr(op, fmt.Errorf("%w: %dx%d from (%d,%d) of %dx%d to (%d,%d) of %dx%d",
			ErrOutOfBounds, w, h, srcX, srcY, src.width, src.height, dstX, dstY, dst.width, dst.height))
	}
	if src.format != dst.format {
		return contractErr(op, fmt.Errorf("%w: %v to %v", ErrInvalidArgument, src.format, dst.format))
	}

	err := d.blit(src.native, backend.Origin{X: srcX, Y: srcY}, dst.native, backend.Origin{X: dstX, Y: dstY},
		backend.Extent{Width: w, Height: h, Depth: 1})
	if err != nil {
		return fmt.Errorf("gfx: %s: %w", op, err)
	}
	dst.gpuWritten = true
	if !d.inScene {
		return d.Flush()
	}
	return nil
}

func inBounds(t *Texture, x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w > 0 && h > 0 && x+w <= t.width && y+h <= t.height
}

// blit records a texture copy outside any render pass.
func (d *Device) blit(src backend.Texture, srcOrigin backend.Origin, dst backend.Texture, dstOrigin backend.Origin, size backend.Extent) error {
	if err := d.settlePass(); err != nil {
		return err
	}
	cmd, err := d.ctx.commandBuffer(d.backend)
	if err != nil {
		return err
	}
	enc, err := cmd.BeginBlit()
	if err != nil {
		return err
	}
	copyErr := enc.CopyTexture(src, 0, srcOrigin, dst, 0, dstOrigin, size)
	return errors.Join(copyErr, enc.End())
}

// StageTexture copies src into dst and downloads it for Map. It submits
// outstanding work and waits for completion.
func (d *Device) StageTexture(dst *StageSurface, src *Texture) error {
	const op = "stage texture"
	if d.closed {
		return contractErr(op, ErrClosed)
	}
	if dst == nil || src == nil || dst.destroyed || src.destroyed || dst.native == nil || src.native == nil {
		return contractErr(op, ErrReleased)
	}
	if dst.width != src.width || dst.height != src.height {
		return contractErr(op, fmt.Errorf("%w: %dx%d into %dx%d", ErrOutOfBounds, src.width, src.height, dst.width, dst.height))
	}
	if dst.format != src.format {
		return contractErr(op, fmt.Errorf("%w: %v into %v", ErrInvalidArgument, src.format, dst.format))
	}
	if !d.limits.CanReadBack {
		return fmt.Errorf("gfx: %s: %w", op, backend.ErrUnsupportedFormat)
	}

	dst.valid = false
	err := d.blit(src.native, backend.Origin{}, dst.native, backend.Origin{},
		backend.Extent{Width: src.width, Height: src.height, Depth: 1})
	if err != nil {
		return fmt.Errorf("gfx: %s: %w", op, err)
	}
	if err := d.Flush(); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	if err := dst.download(); err != nil {
		return fmt.Errorf("gfx: %s: %w", op, err)
	}
	return nil
}

// =============================================================================
// Device loss
// =============================================================================

// dropGPUState abandons recorded work and every cached native object.
func (d *Device) dropGPUState() {
	dc := &d.ctx
	if dc.enc != nil {
		_ = dc.enc.End()
	}
	dc.enc = nil
	dc.target = nil
	dc.zs = nil
	dc.cmd = nil
	dc.pass = StateIdle
	d.inScene = false
	d.clearStack = d.clearStack[:0]
	dc.resetEncoderState()
	dc.bindings.reset()
	dc.matrixShader = nil

	if err := d.waitIdle(); err != nil {
		d.log.Warn("gfx: device loss: outstanding work did not complete", "err", err)
	}
	d.state.purge()
	d.retireStateObjects()
	d.buryAll()
	d.pool.Drain()
	d.matricesDirty = true
}

// ReleaseAll releases the native objects of every registered resource.
// Call it when the device is lost, before the native device is restored.
func (d *Device) ReleaseAll() {
	d.log.Info("gfx: releasing device objects", "objects", d.registry.Len())
	d.dropGPUState()
	d.registry.forEach(func(_ Handle, r resource) {
		r.release()
	})
}

// RebuildAll recreates the native objects of every registered resource.
// Failures are logged and joined; the sweep always visits every object.
func (d *Device) RebuildAll() error {
	d.log.Info("gfx: rebuilding device objects", "objects", d.registry.Len())
	var errs []error
	d.registry.forEach(func(_ Handle, r resource) {
		if err := r.rebuild(); err != nil {
			d.log.Warn("gfx: rebuild failed", "kind", r.Kind(), "err", err)
			errs = append(errs, fmt.Errorf("gfx: rebuild %s: %w", r.Kind(), err))
		}
	})
	return errors.Join(errs...)
}

// RebuildDevice releases and rebuilds every registered resource in one
// sweep. Failures are logged and joined; the sweep always visits every
// object.
func (d *Device) RebuildDevice() error {
	d.log.Info("gfx: rebuilding device", "objects", d.registry.Len())
	d.dropGPUState()
	var errs []error
	d.registry.forEach(func(_ Handle, r resource) {
		r.release()
		if err := r.rebuild(); err != nil {
			d.log.Warn("gfx: rebuild failed", "kind", r.Kind(), "err", err)
			errs = append(errs, fmt.Errorf("gfx: rebuild %s: %w", r.Kind(), err))
		}
	})
	return errors.Join(errs...)
}

// Close submits outstanding work, waits for it, force-releases every
// registered resource and closes the backend device. Close is idempotent.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	flushErr := d.Flush()
	waitErr := d.waitIdle()

	d.state.purge()
	d.retireStateObjects()
	d.buryAll()
	n := d.registry.Len()
	d.registry.forEach(func(h Handle, r resource) {
		// Contents are not needed past close.
		if t, ok := r.(*Texture); ok {
			t.discard()
		} else {
			r.release()
		}
		d.registry.remove(h)
	})
	d.pool.Drain()
	d.closed = true

	closeErr := d.backend.Close()
	d.log.Info("gfx: device closed", "released", n)
	return errors.Join(flushErr, waitErr, closeErr)
}

// retireStateObjects moves evicted pipeline objects to the graveyard.
func (d *Device) retireStateObjects() {
	for _, destroy := range d.state.takeRetired() {
		d.retire(destroy)
	}
}

// =============================================================================
// Unbinding on destroy
// =============================================================================

func (d *Device) unbindShader(s *Shader) {
	if d.vertexShader == s {
		d.vertexShader = nil
	}
	if d.pixelShader == s {
		d.pixelShader = nil
	}
	if d.ctx.bindings.vs == s {
		d.ctx.bindings.reset()
	}
	if d.ctx.matrixShader == s {
		d.ctx.matrixShader = nil
	}
	if n := d.state.evictShader(s); n > 0 {
		d.log.Debug("gfx: pipelines evicted", "shader", s.file, "count", n)
	}
	d.retireStateObjects()
	d.ctx.pipeline = nil
}

func (d *Device) unbindSampler(s *Sampler) {
	for i, bound := range d.samplers {
		if bound == s {
			d.samplers[i] = nil
		}
	}
}

func (d *Device) unbindTexture(t *Texture) {
	for i, bound := range d.textures {
		if bound == t {
			d.textures[i] = nil
		}
	}
	if d.renderTarget == t {
		if err := d.endTargetSpan(); err != nil {
			d.log.Warn("gfx: pending clear dropped", "err", err)
		}
		d.renderTarget = nil
	}
}

func (d *Device) unbindVertexBuffer(vb *VertexBuffer) {
	if d.vertexBuffer == vb {
		d.vertexBuffer = nil
	}
	if d.ctx.bindings.vb == vb {
		d.ctx.bindings.reset()
	}
}

func (d *Device) unbindIndexBuffer(ib *IndexBuffer) {
	if d.indexBuffer == ib {
		d.indexBuffer = nil
	}
}

func (d *Device) unbindZStencil(z *ZStencil) {
	if d.zstencil == z {
		if err := d.endTargetSpan(); err != nil {
			d.log.Warn("gfx: pending clear dropped", "err", err)
		}
		d.zstencil = nil
	}
}

func (d *Device) unbindSwapChain(sc *SwapChain) {
	d.unbindSwapChainTarget(sc)
	if d.swapChain == sc {
		d.swapChain = nil
	}
}

// unbindSwapChainTarget ends the target span when sc's drawable is the
// current target.
func (d *Device) unbindSwapChainTarget(sc *SwapChain) {
	if d.swapChain == sc && d.renderTarget == nil && sc.current != nil {
		if err := d.endTargetSpan(); err != nil {
			d.log.Warn("gfx: pending clear dropped", "err", err)
		}
	}
}
