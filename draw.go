package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// PassState is the state of the draw pipeline.
type PassState uint8

const (
	// StateIdle means no scene is being recorded.
	StateIdle PassState = iota
	// StateRecordingPass means draws are accepted.
	StateRecordingPass
	// StateSubmitted means a command buffer is being committed.
	StateSubmitted
)

// String returns the state name.
func (s PassState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRecordingPass:
		return "RecordingPass"
	case StateSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("PassState(%d)", uint8(s))
	}
}

func (m DrawMode) topology() gputypes.PrimitiveTopology {
	switch m {
	case DrawPoints:
		return gputypes.PrimitiveTopologyPointList
	case DrawLines:
		return gputypes.PrimitiveTopologyLineList
	case DrawLineStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case DrawTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

// drawContext is the encoder-side state threaded through the draw steps.
// It remembers what was last bound on the open encoder so unchanged
// bindings are not re-encoded.
type drawContext struct {
	pass PassState
	cmd  backend.CommandBuffer
	enc  backend.RenderEncoder

	target *Texture
	zs     *ZStencil

	pipeline     backend.RenderPipeline
	depthStencil backend.DepthStencilState
	raster       RasterState
	rasterSet    bool
	streams      [MaxVertexStreams]backend.Buffer
	textures     []backend.Texture
	samplers     []backend.Sampler
	vsBlock      *PooledBuffer
	psBlock      *PooledBuffer

	bindings     vertexBindingCache
	matrixShader *Shader
}

func (dc *drawContext) init(slots int) {
	dc.textures = make([]backend.Texture, slots)
	dc.samplers = make([]backend.Sampler, slots)
}

// commandBuffer returns the command buffer being recorded, starting one
// when needed.
func (dc *drawContext) commandBuffer(dev backend.Device) (backend.CommandBuffer, error) {
	if dc.cmd != nil {
		return dc.cmd, nil
	}
	cmd, err := dev.NewCommandBuffer()
	if err != nil {
		return nil, err
	}
	dc.cmd = cmd
	return cmd, nil
}

// resetEncoderState forgets everything bound on the previous encoder.
func (dc *drawContext) resetEncoderState() {
	dc.pipeline = nil
	dc.depthStencil = nil
	dc.raster = RasterState{}
	dc.rasterSet = false
	dc.streams = [MaxVertexStreams]backend.Buffer{}
	clear(dc.textures)
	clear(dc.samplers)
	dc.vsBlock = nil
	dc.psBlock = nil
}

// drawCall carries the resolved bindings of one draw between the steps.
type drawCall struct {
	mode     DrawMode
	start    uint32
	count    uint32
	indexed  bool
	target   *Texture
	vs, ps   *Shader
	vb       *VertexBuffer
	ib       *IndexBuffer
	bindings []VertexBinding
}

// Draw encodes count vertices starting at start from the bound vertex
// buffer. A zero count draws the remaining vertices.
func (d *Device) Draw(mode DrawMode, start, count int) error {
	call, err := d.checkDraw(mode, start, count, false)
	if err != nil {
		return err
	}
	return d.draw(call)
}

// DrawIndexed encodes count indices starting at start from the bound index
// buffer. A zero count draws the remaining indices.
func (d *Device) DrawIndexed(mode DrawMode, start, count int) error {
	call, err := d.checkDraw(mode, start, count, true)
	if err != nil {
		return err
	}
	return d.draw(call)
}

// checkDraw validates the mandatory bindings before anything is encoded.
func (d *Device) checkDraw(mode DrawMode, start, count int, indexed bool) (*drawCall, error) {
	const op = "draw"
	if d.closed {
		return nil, contractErr(op, ErrClosed)
	}
	if d.ctx.pass != StateRecordingPass {
		return nil, contractErr(op, ErrNotRecording)
	}
	vs, ps := d.vertexShader, d.pixelShader
	if vs == nil {
		return nil, contractErr(op, ErrNoVertexShader)
	}
	if ps == nil {
		return nil, contractErr(op, ErrNoPixelShader)
	}
	if vs.fn == nil || ps.fn == nil {
		return nil, contractErr(op, ErrReleased)
	}
	target, err := d.currentTarget()
	if err != nil {
		return nil, fmt.Errorf("gfx: %s: %w", op, err)
	}
	if target == nil {
		return nil, contractErr(op, ErrNoRenderTarget)
	}
	if target.native == nil {
		return nil, contractErr(op, ErrReleased)
	}
	vb := d.vertexBuffer
	if vb == nil {
		return nil, contractErr(op, ErrNoVertexBuffer)
	}

	limit := vb.NumVertices()
	var ib *IndexBuffer
	if indexed {
		ib = d.indexBuffer
		if ib == nil {
			return nil, contractErr(op, ErrNoIndexBuffer)
		}
		limit = ib.Count()
	}
	if start < 0 || count < 0 || start > limit {
		return nil, contractErr(op, fmt.Errorf("%w: start %d count %d of %d", ErrOutOfBounds, start, count, limit))
	}
	if count == 0 {
		count = limit - start
	}
	if start+count > limit {
		return nil, contractErr(op, fmt.Errorf("%w: start %d count %d of %d", ErrOutOfBounds, start, count, limit))
	}

	return &drawCall{
		mode:    mode,
		start:   uint32(start),
		count:   uint32(count),
		indexed: indexed,
		target:  target,
		vs:      vs,
		ps:      ps,
		vb:      vb,
		ib:      ib,
	}, nil
}

// draw runs the draw steps in order. A failing step aborts the draw before
// the primitive is encoded.
func (d *Device) draw(call *drawCall) error {
	steps := [...]struct {
		name string
		run  func(*drawCall) error
	}{
		{"clear", d.applyClear},
		{"matrices", d.updateMatrices},
		{"state", d.bindState},
		{"vertex buffers", d.bindVertexBuffers},
		{"textures", d.bindTextures},
		{"constants", d.uploadConstants},
		{"encode", d.encodeDraw},
	}
	for _, step := range steps {
		if err := step.run(call); err != nil {
			d.log.Debug("gfx: draw aborted", "step", step.name, "err", err)
			return err
		}
	}
	call.target.gpuWritten = true
	return nil
}

// applyClear makes sure a pass is open on the call's target. A pending
// clear for that target starts a new pass with the clear as load action.
func (d *Device) applyClear(call *drawCall) error {
	dc := &d.ctx
	cs, pending := d.pendingClear(call.target)
	if !pending && dc.enc != nil && dc.target == call.target && dc.zs == d.zstencil {
		return nil
	}
	if err := d.endPass(); err != nil {
		return err
	}
	var clearState *ClearState
	if pending {
		clearState = &cs
	}
	return d.beginPass(call.target, d.zstencil, clearState)
}

// updateMatrices writes the combined transform into the vertex shader's
// ViewProj parameter and the world matrix into its World parameter.
func (d *Device) updateMatrices(call *drawCall) error {
	dc := &d.ctx
	if !d.matricesDirty && dc.matrixShader == call.vs {
		return nil
	}
	if p := call.vs.viewProj; p != nil {
		if err := call.vs.SetMatrix4(p, d.ViewProjMatrix()); err != nil {
			return err
		}
	}
	if p := call.vs.world; p != nil {
		if err := call.vs.SetMatrix4(p, d.world); err != nil {
			return err
		}
	}
	d.matricesDirty = false
	dc.matrixShader = call.vs
	return nil
}

// bindState resolves the State Cache against the shaders, the vertex
// layout and the attachment formats, then binds whatever changed.
func (d *Device) bindState(call *drawCall) error {
	dc := &d.ctx
	// The vertex layout is part of the pipeline key, so the bindings are
	// resolved here. bindVertexBuffers only binds what this records.
	bindings, layout, err := dc.bindings.lookup(call.vb, call.vs)
	if err != nil {
		return fmt.Errorf("gfx: draw: %w", err)
	}
	call.bindings = bindings

	in := pipelineInputs{
		vertex:      call.vs,
		pixel:       call.ps,
		layout:      *layout,
		color:       call.target.format.Native(),
		depthFormat: gputypes.TextureFormatUndefined,
	}
	if dc.zs != nil {
		in.depthFormat = dc.zs.format.Native()
	}
	pipeline, ds, err := d.state.resolve(&in)
	d.retireStateObjects()
	if err != nil {
		return err
	}
	if pipeline != dc.pipeline {
		dc.enc.SetPipeline(pipeline)
		dc.pipeline = pipeline
	}
	if ds != dc.depthStencil {
		dc.enc.SetDepthStencilState(ds)
		dc.depthStencil = ds
	}

	raster := d.state.RasterState()
	if dc.rasterSet && raster == dc.raster {
		return nil
	}
	vp := raster.Viewport
	if vp.Width == 0 || vp.Height == 0 {
		vp = backend.Viewport{
			Width:    float32(call.target.width),
			Height:   float32(call.target.height),
			MaxDepth: 1,
		}
	}
	dc.enc.SetViewport(vp)
	if raster.ScissorEnabled {
		r := raster.Scissor
		dc.enc.SetScissorRect(&r)
	} else {
		dc.enc.SetScissorRect(nil)
	}
	dc.enc.SetCullMode(raster.Cull)
	dc.raster = raster
	dc.rasterSet = true
	return nil
}

// bindVertexBuffers uploads pending buffer data and binds one native
// buffer per resolved slot.
func (d *Device) bindVertexBuffers(call *drawCall) error {
	dc := &d.ctx
	if err := call.vb.ensure(); err != nil {
		return fmt.Errorf("gfx: draw: %w", err)
	}
	if call.indexed {
		if err := call.ib.ensure(); err != nil {
			return fmt.Errorf("gfx: draw: %w", err)
		}
	}
	for slot, b := range call.bindings {
		buf := call.vb.Native(b.Stream)
		if buf == nil {
			return contractErr("draw", fmt.Errorf("%w: %s stream", ErrReleased, b.Stream))
		}
		if dc.streams[slot] != buf {
			dc.enc.SetVertexBuffer(slot, buf, 0)
			dc.streams[slot] = buf
		}
	}
	return nil
}

// bindTextures binds every non-nil texture and sampler slot. Empty device
// slots fall back to textures set on pixel shader parameters and to the
// samplers the pixel shader declares.
func (d *Device) bindTextures(call *drawCall) error {
	dc := &d.ctx
	for slot := range d.maxTextures {
		tex := d.textures[slot]
		smp := d.samplers[slot]
		if tex == nil || smp == nil {
			for _, p := range call.ps.params {
				if p.typ != ParamTexture || p.textureUnit != slot {
					continue
				}
				if tex == nil {
					tex = p.texture
				}
				if smp == nil {
					smp = p.sampler
				}
			}
		}
		if smp == nil {
			smp = call.ps.samplerFor(slot)
		}

		if tex != nil {
			if tex.native == nil {
				return contractErr("draw", fmt.Errorf("%w: texture %q in slot %d", ErrReleased, tex.label, slot))
			}
			if dc.textures[slot] != tex.native {
				dc.enc.SetFragmentTexture(slot, tex.native)
				dc.textures[slot] = tex.native
			}
		}
		if smp != nil && smp.native != nil && dc.samplers[slot] != smp.native {
			dc.enc.SetFragmentSampler(slot, smp.native)
			dc.samplers[slot] = smp.native
		}
	}
	return nil
}

// uploadConstants writes changed parameters into pooled blocks and binds
// them as the stage uniform buffers.
func (d *Device) uploadConstants(call *drawCall) error {
	dc := &d.ctx
	vsBlock, err := call.vs.uploadConstants(d.pool)
	if err != nil {
		return err
	}
	if vsBlock != nil && vsBlock != dc.vsBlock {
		dc.enc.SetVertexUniforms(vsBlock.Buffer(), 0, uint64(call.vs.constSize))
		dc.vsBlock = vsBlock
	}
	psBlock, err := call.ps.uploadConstants(d.pool)
	if err != nil {
		return err
	}
	if psBlock != nil && psBlock != dc.psBlock {
		dc.enc.SetFragmentUniforms(psBlock.Buffer(), 0, uint64(call.ps.constSize))
		dc.psBlock = psBlock
	}
	return nil
}

func (d *Device) encodeDraw(call *drawCall) error {
	enc := d.ctx.enc
	topology := call.mode.topology()
	var err error
	if call.indexed {
		err = enc.DrawIndexed(topology, call.ib.native, call.ib.typ.native(), call.start, call.count)
	} else {
		err = enc.Draw(topology, call.start, call.count)
	}
	if err != nil {
		return fmt.Errorf("gfx: draw %s: %w", call.mode, err)
	}
	return nil
}

// =============================================================================
// Passes
// =============================================================================

// beginPass opens a render pass on target. A nil clear loads the existing
// contents.
func (d *Device) beginPass(target *Texture, zs *ZStencil, clearState *ClearState) error {
	dc := &d.ctx
	cmd, err := dc.commandBuffer(d.backend)
	if err != nil {
		return fmt.Errorf("gfx: begin pass: %w", err)
	}

	desc := &backend.RenderPassDescriptor{
		Label:       target.label,
		Color:       target.native,
		ColorLoad:   gputypes.LoadOpLoad,
		DepthLoad:   gputypes.LoadOpLoad,
		StencilLoad: gputypes.LoadOpLoad,
	}
	if zs != nil {
		desc.DepthStencil = zs.native
	}
	if clearState != nil {
		if clearState.Flags.Has(ClearColor) {
			c := clearState.Color
			desc.ColorLoad = gputypes.LoadOpClear
			desc.ClearColor = gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
		}
		if clearState.Flags.Has(ClearDepth) {
			desc.DepthLoad = gputypes.LoadOpClear
			desc.ClearDepth = clearState.Depth
		}
		if clearState.Flags.Has(ClearStencil) {
			desc.StencilLoad = gputypes.LoadOpClear
			desc.ClearStencil = uint32(clearState.Stencil)
		}
	}

	enc, err := cmd.BeginRenderPass(desc)
	if err != nil {
		return fmt.Errorf("gfx: begin pass: %w", err)
	}
	dc.enc = enc
	dc.target = target
	dc.zs = zs
	dc.resetEncoderState()
	return nil
}

// endPass closes the open render pass, if any.
func (d *Device) endPass() error {
	dc := &d.ctx
	if dc.enc == nil {
		return nil
	}
	enc := dc.enc
	dc.enc = nil
	dc.target = nil
	dc.zs = nil
	dc.resetEncoderState()
	if err := enc.End(); err != nil {
		return fmt.Errorf("gfx: end pass: %w", err)
	}
	return nil
}

// settlePass encodes a pending clear that no draw consumed and closes the
// open pass.
func (d *Device) settlePass() error {
	n := len(d.clearStack)
	if n == 0 {
		return d.endPass()
	}
	top := d.clearStack[n-1]
	if top.target == nil || top.target.native == nil {
		d.clearStack = d.clearStack[:n-1]
		return d.endPass()
	}
	if err := d.endPass(); err != nil {
		return err
	}
	d.clearStack = d.clearStack[:n-1]
	var zs *ZStencil
	if d.zstencil != nil && d.zstencil.native != nil {
		zs = d.zstencil
	}
	if err := d.beginPass(top.target, zs, &top.state); err != nil {
		return err
	}
	top.target.gpuWritten = true
	return d.endPass()
}

// endTargetSpan applies a pending clear and ends the clear-state scope of
// the current target.
func (d *Device) endTargetSpan() error {
	err := d.settlePass()
	d.clearStack = d.clearStack[:0]
	return err
}
