package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/cache"
)

// BlendState is the fixed-function blend configuration.
type BlendState struct {
	Enabled bool

	SrcColor, DstColor gputypes.BlendFactor
	SrcAlpha, DstAlpha gputypes.BlendFactor
	ColorOp, AlphaOp   gputypes.BlendOperation

	WriteRed, WriteGreen, WriteBlue, WriteAlpha bool
}

// DefaultBlendState returns source-over blending with all channels written.
func DefaultBlendState() BlendState {
	return BlendState{
		Enabled:    true,
		SrcColor:   gputypes.BlendFactorSrcAlpha,
		DstColor:   gputypes.BlendFactorOneMinusSrcAlpha,
		SrcAlpha:   gputypes.BlendFactorOne,
		DstAlpha:   gputypes.BlendFactorOneMinusSrcAlpha,
		ColorOp:    gputypes.BlendOperationAdd,
		AlphaOp:    gputypes.BlendOperationAdd,
		WriteRed:   true,
		WriteGreen: true,
		WriteBlue:  true,
		WriteAlpha: true,
	}
}

func (b BlendState) native() *backend.BlendState {
	if !b.Enabled {
		return nil
	}
	return &backend.BlendState{
		Color: backend.BlendComponent{SrcFactor: b.SrcColor, DstFactor: b.DstColor, Operation: b.ColorOp},
		Alpha: backend.BlendComponent{SrcFactor: b.SrcAlpha, DstFactor: b.DstAlpha, Operation: b.AlphaOp},
	}
}

func (b BlendState) writeMask() gputypes.ColorWriteMask {
	var m gputypes.ColorWriteMask
	if b.WriteRed {
		m |= gputypes.ColorWriteMaskRed
	}
	if b.WriteGreen {
		m |= gputypes.ColorWriteMaskGreen
	}
	if b.WriteBlue {
		m |= gputypes.ColorWriteMaskBlue
	}
	if b.WriteAlpha {
		m |= gputypes.ColorWriteMaskAlpha
	}
	return m
}

// RasterState is the viewport, culling and scissor configuration. It is
// applied as dynamic encoder state and does not select a pipeline object.
type RasterState struct {
	Viewport       backend.Viewport
	Cull           gputypes.CullMode
	ScissorEnabled bool
	Scissor        backend.Rect
}

// StencilSide holds the stencil operations for one face winding.
type StencilSide struct {
	Fail      backend.StencilOp
	DepthFail backend.StencilOp
	Pass      backend.StencilOp
}

// ZStencilState is the depth test and stencil configuration.
type ZStencilState struct {
	DepthEnabled bool
	DepthWrite   bool
	DepthFunc    gputypes.CompareFunction

	StencilEnabled bool
	StencilWrite   bool
	StencilFunc    gputypes.CompareFunction
	StencilFront   StencilSide
	StencilBack    StencilSide
}

// DefaultZStencilState returns depth testing and stencil disabled.
func DefaultZStencilState() ZStencilState {
	return ZStencilState{
		DepthWrite:  true,
		DepthFunc:   gputypes.CompareFunctionLessEqual,
		StencilFunc: gputypes.CompareFunctionAlways,
	}
}

func (z ZStencilState) descriptor() *backend.DepthStencilDescriptor {
	desc := &backend.DepthStencilDescriptor{
		Label:             "gfx depth-stencil",
		DepthTestEnabled:  z.DepthEnabled,
		DepthWriteEnabled: z.DepthEnabled && z.DepthWrite,
		DepthCompare:      z.DepthFunc,
		StencilEnabled:    z.StencilEnabled,
		StencilReadMask:   0xff,
	}
	if !z.DepthEnabled {
		desc.DepthCompare = gputypes.CompareFunctionAlways
	}
	if z.StencilEnabled {
		desc.StencilFront = backend.StencilFace{
			Compare: z.StencilFunc, FailOp: z.StencilFront.Fail,
			DepthFailOp: z.StencilFront.DepthFail, PassOp: z.StencilFront.Pass,
		}
		desc.StencilBack = backend.StencilFace{
			Compare: z.StencilFunc, FailOp: z.StencilBack.Fail,
			DepthFailOp: z.StencilBack.DepthFail, PassOp: z.StencilBack.Pass,
		}
		if z.StencilWrite {
			desc.StencilWriteMask = 0xff
		}
	}
	return desc
}

// vertexLayout is the resolved stream layout of a draw.
type vertexLayout struct {
	streams [MaxVertexStreams]backend.VertexBufferLayout
	n       int
}

func (l *vertexLayout) slice() []backend.VertexBufferLayout {
	return l.streams[:l.n]
}

// pipelineKey identifies one derived pipeline object.
type pipelineKey struct {
	blend       BlendState
	vertex      *Shader
	pixel       *Shader
	layout      vertexLayout
	color       gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
}

// pipelineInputs are the non-state inputs of pipeline derivation.
type pipelineInputs struct {
	vertex, pixel *Shader
	layout        vertexLayout
	color         gputypes.TextureFormat
	depthFormat   gputypes.TextureFormat
}

// StateCacheStats reports derivation counters.
type StateCacheStats struct {
	// Derivations counts native pipeline objects created.
	Derivations uint64
	// DepthDerivations counts native depth-stencil objects created.
	DepthDerivations uint64
	// Hits counts resolves served by a memoized object.
	Hits uint64
	// Cached is the number of pipeline objects held.
	Cached int
}

// StateCache holds the three render states and derives native pipeline and
// depth-stencil objects from them when they change.
//
// Setters only compare and mark dirty; derivation happens in resolve, once
// per draw. Every derived object is memoized by its configuration, so
// toggling back to an earlier state reuses the earlier object.
type StateCache struct {
	dev backend.Device

	blend    BlendState
	raster   RasterState
	zstencil ZStencilState
	dirty    bool

	pipelines   *cache.Cache[pipelineKey, backend.RenderPipeline]
	depthStates *cache.Cache[ZStencilState, backend.DepthStencilState]

	key          pipelineKey
	pipeline     backend.RenderPipeline
	depthStencil backend.DepthStencilState

	// retired collects evicted objects; the device destroys them once the
	// GPU can no longer reference them.
	retired []func()

	derivations, depthDerivations, hits uint64
}

// newStateCache creates a cache holding up to limit pipeline objects.
func newStateCache(dev backend.Device, limit int) *StateCache {
	c := &StateCache{
		dev:      dev,
		blend:    DefaultBlendState(),
		zstencil: DefaultZStencilState(),
		raster:   RasterState{Cull: gputypes.CullModeNone},
		dirty:    true,
	}
	c.pipelines = cache.New(limit, func(_ pipelineKey, p backend.RenderPipeline) {
		c.retired = append(c.retired, p.Destroy)
	})
	c.depthStates = cache.New(limit, func(_ ZStencilState, s backend.DepthStencilState) {
		c.retired = append(c.retired, s.Destroy)
	})
	return c
}

// SetBlendState stores s, marking the cache dirty when it differs.
func (c *StateCache) SetBlendState(s BlendState) {
	if c.blend != s {
		c.blend = s
		c.dirty = true
	}
}

// SetRasterState stores s, marking the cache dirty when it differs.
func (c *StateCache) SetRasterState(s RasterState) {
	if c.raster != s {
		c.raster = s
		c.dirty = true
	}
}

// SetZStencilState stores s, marking the cache dirty when it differs.
func (c *StateCache) SetZStencilState(s ZStencilState) {
	if c.zstencil != s {
		c.zstencil = s
		c.dirty = true
	}
}

// BlendState returns the current blend state.
func (c *StateCache) BlendState() BlendState { return c.blend }

// RasterState returns the current raster state.
func (c *StateCache) RasterState() RasterState { return c.raster }

// ZStencilState returns the current depth-stencil state.
func (c *StateCache) ZStencilState() ZStencilState { return c.zstencil }

// Dirty reports whether a state changed since the last resolve.
func (c *StateCache) Dirty() bool { return c.dirty }

// Stats returns derivation counters.
func (c *StateCache) Stats() StateCacheStats {
	return StateCacheStats{
		Derivations:      c.derivations,
		DepthDerivations: c.depthDerivations,
		Hits:             c.hits,
		Cached:           c.pipelines.Len(),
	}
}

// resolve returns the pipeline and depth-stencil objects for the current
// states and in. When neither the states nor in changed, the cached objects
// are returned without touching the memo. On failure the cache stays dirty.
func (c *StateCache) resolve(in *pipelineInputs) (backend.RenderPipeline, backend.DepthStencilState, error) {
	key := pipelineKey{
		blend:       c.blend,
		vertex:      in.vertex,
		pixel:       in.pixel,
		layout:      in.layout,
		color:       in.color,
		depthFormat: in.depthFormat,
	}
	if !c.dirty && c.pipeline != nil && key == c.key {
		return c.pipeline, c.depthStencil, nil
	}

	pipeline, hit, err := c.pipelines.GetOrCreate(key, func() (backend.RenderPipeline, error) {
		return c.derivePipeline(&key)
	})
	if err != nil {
		c.dirty = true
		return nil, nil, err
	}
	if hit {
		c.hits++
	}

	ds, _, err := c.depthStates.GetOrCreate(c.zstencil, func() (backend.DepthStencilState, error) {
		s, err := c.dev.NewDepthStencilState(c.zstencil.descriptor())
		if err != nil {
			return nil, fmt.Errorf("gfx: derive depth-stencil state: %w", err)
		}
		c.depthDerivations++
		return s, nil
	})
	if err != nil {
		c.dirty = true
		return nil, nil, err
	}

	c.key = key
	c.pipeline = pipeline
	c.depthStencil = ds
	c.dirty = false
	return pipeline, ds, nil
}

func (c *StateCache) derivePipeline(key *pipelineKey) (backend.RenderPipeline, error) {
	vs, ps := key.vertex.native(), key.pixel.native()
	if vs == nil || ps == nil {
		return nil, ErrReleased
	}
	desc := &backend.RenderPipelineDescriptor{
		Label:              key.vertex.file + "+" + key.pixel.file,
		Vertex:             vs,
		Fragment:           ps,
		Buffers:            key.layout.slice(),
		ColorFormat:        key.color,
		DepthStencilFormat: key.depthFormat,
		Blend:              key.blend.native(),
		WriteMask:          key.blend.writeMask(),
	}
	p, err := c.dev.NewRenderPipeline(desc)
	if err != nil {
		return nil, &CompileError{
			Pipeline:   true,
			File:       desc.Label,
			Diagnostic: err.Error(),
			Err:        err,
		}
	}
	c.derivations++
	slogger().Debug("gfx: pipeline derived",
		"label", desc.Label, "streams", key.layout.n, "blend", key.blend.Enabled)
	return p, nil
}

// takeRetired returns and clears the evicted objects awaiting destruction.
func (c *StateCache) takeRetired() []func() {
	r := c.retired
	c.retired = nil
	return r
}

// evictShader retires the pipelines derived from s.
func (c *StateCache) evictShader(s *Shader) int {
	n := c.pipelines.EvictFunc(func(k pipelineKey, _ backend.RenderPipeline) bool {
		return k.vertex == s || k.pixel == s
	})
	if c.key.vertex == s || c.key.pixel == s {
		c.pipeline = nil
		c.key = pipelineKey{}
		c.dirty = true
	}
	return n
}

// purge destroys every derived object and marks the cache dirty. Used on
// device loss and on close.
func (c *StateCache) purge() {
	c.pipelines.Purge()
	c.depthStates.Purge()
	c.pipeline = nil
	c.depthStencil = nil
	c.key = pipelineKey{}
	c.dirty = true
}
