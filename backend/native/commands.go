package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

var (
	errEncoderOpen    = errors.New("native: another encoder is still open")
	errCommitted      = errors.New("native: command buffer already committed")
	errNoPipeline     = errors.New("native: draw without pipeline")
	errEncoderEnded   = errors.New("native: encoder already ended")
	errBadAttachment  = errors.New("native: attachment is not a native texture")
	errForeignObject  = errors.New("native: object belongs to another backend")
	errIndexOutOfData = errors.New("native: index range exceeds index buffer")
)

// CommandBuffer records passes on a HAL command encoder.
type CommandBuffer struct {
	dev       *Device
	enc       hal.CommandEncoder
	open      bool
	committed bool

	// groups are the bind groups created while recording. They are
	// destroyed once the submission completes.
	groups []hal.BindGroup
}

func loadOp(op gputypes.LoadOp) gputypes.LoadOp {
	if op == gputypes.LoadOpUndefined {
		return gputypes.LoadOpLoad
	}
	return op
}

// BeginRenderPass starts a render pass over the given attachments.
func (cb *CommandBuffer) BeginRenderPass(desc *backend.RenderPassDescriptor) (backend.RenderEncoder, error) {
	if cb.open {
		return nil, errEncoderOpen
	}
	if cb.committed {
		return nil, errCommitted
	}
	color, ok := desc.Color.(*Texture)
	if !ok || color == nil {
		return nil, errBadAttachment
	}
	if color.destroyed {
		return nil, backend.ErrDestroyed
	}
	view, err := color.attachment()
	if err != nil {
		return nil, err
	}
	rp := &hal.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     loadOp(desc.ColorLoad),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: desc.ClearColor,
		}},
	}

	if desc.DepthStencil != nil {
		ds, ok := desc.DepthStencil.(*Texture)
		if !ok || ds == nil || !backend.IsDepthFormat(ds.format) {
			return nil, errBadAttachment
		}
		if ds.width != color.width || ds.height != color.height {
			return nil, fmt.Errorf("native: pass %q: depth-stencil %dx%d does not match color %dx%d",
				desc.Label, ds.width, ds.height, color.width, color.height)
		}
		dsView, err := ds.attachment()
		if err != nil {
			return nil, err
		}
		att := &hal.RenderPassDepthStencilAttachment{
			View:            dsView,
			DepthLoadOp:     loadOp(desc.DepthLoad),
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: desc.ClearDepth,
		}
		if backend.HasStencil(ds.format) {
			att.StencilLoadOp = loadOp(desc.StencilLoad)
			att.StencilStoreOp = gputypes.StoreOpStore
			att.StencilClearValue = desc.ClearStencil
		}
		rp.DepthStencilAttachment = att
	}

	pass := cb.enc.BeginRenderPass(rp)
	pass.SetViewport(0, 0, float32(color.width), float32(color.height), 0, 1)
	pass.SetScissorRect(0, 0, uint32(color.width), uint32(color.height))
	cb.open = true
	return &RenderEncoder{
		cb:     cb,
		pass:   pass,
		width:  color.width,
		height: color.height,
	}, nil
}

// BeginBlit starts a copy encoder.
func (cb *CommandBuffer) BeginBlit() (backend.BlitEncoder, error) {
	if cb.open {
		return nil, errEncoderOpen
	}
	if cb.committed {
		return nil, errCommitted
	}
	cb.open = true
	return &BlitEncoder{cb: cb}, nil
}

// Commit submits the recorded work.
func (cb *CommandBuffer) Commit(onComplete func(error)) error {
	if cb.committed {
		return errCommitted
	}
	cb.committed = true

	groups := cb.groups
	cb.groups = nil
	cleanup := func() {
		for _, g := range groups {
			cb.dev.dev.DestroyBindGroup(g)
		}
	}
	var reject error
	if cb.open {
		reject = errEncoderOpen
	}
	return cb.dev.submit(cb.enc, onComplete, cleanup, reject)
}

type uniformBinding struct {
	buf          hal.Buffer
	offset, size uint64
}

// RenderEncoder records draws into a HAL render pass.
type RenderEncoder struct {
	cb            *CommandBuffer
	pass          hal.RenderPassEncoder
	width, height int

	pipeline *RenderPipeline
	dss      *DepthStencilState
	cull     gputypes.CullMode

	vsUniforms uniformBinding
	fsUniforms uniformBinding
	textures   [maxTextureUnits]*Texture
	samplers   [maxTextureUnits]*Sampler

	// current is the bound native pipeline; groups are the bound groups.
	current   *variant
	groups    [2]hal.BindGroup
	groupsKey textureLayoutKey
	stale     bool

	ended bool
	err   error
}

func (e *RenderEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *RenderEncoder) SetPipeline(p backend.RenderPipeline) {
	np, ok := p.(*RenderPipeline)
	if !ok {
		e.fail(errForeignObject)
		return
	}
	e.pipeline = np
}

func (e *RenderEncoder) SetDepthStencilState(s backend.DepthStencilState) {
	if s == nil {
		e.dss = nil
		return
	}
	ns, ok := s.(*DepthStencilState)
	if !ok {
		e.fail(errForeignObject)
		return
	}
	e.dss = ns
}

func (e *RenderEncoder) SetViewport(v backend.Viewport) {
	e.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
}

// SetScissorRect clamps r to the target. A nil rect covers the target.
func (e *RenderEncoder) SetScissorRect(r *backend.Rect) {
	if r == nil {
		e.pass.SetScissorRect(0, 0, uint32(e.width), uint32(e.height))
		return
	}
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.Width, e.width), min(r.Y+r.Height, e.height)
	if x1 <= x0 || y1 <= y0 {
		x0, y0, x1, y1 = 0, 0, 0, 0
	}
	e.pass.SetScissorRect(uint32(x0), uint32(y0), uint32(x1-x0), uint32(y1-y0))
}

func (e *RenderEncoder) SetCullMode(mode gputypes.CullMode) { e.cull = mode }

func (e *RenderEncoder) SetStencilReference(ref uint32) { e.pass.SetStencilReference(ref) }

func (e *RenderEncoder) SetVertexBuffer(slot int, b backend.Buffer, offset uint64) {
	if slot < 0 || slot >= int(e.cb.dev.limits.MaxVertexBuffers) {
		e.fail(fmt.Errorf("native: vertex slot %d out of range", slot))
		return
	}
	raw := rawBuffer(b)
	if raw == nil {
		e.fail(errForeignObject)
		return
	}
	e.pass.SetVertexBuffer(uint32(slot), raw, offset)
}

func (e *RenderEncoder) uniforms(b backend.Buffer, offset, size uint64) uniformBinding {
	if b == nil {
		return uniformBinding{}
	}
	raw := rawBuffer(b)
	if raw == nil {
		e.fail(errForeignObject)
	}
	return uniformBinding{buf: raw, offset: offset, size: size}
}

func (e *RenderEncoder) SetVertexUniforms(b backend.Buffer, offset, size uint64) {
	e.vsUniforms = e.uniforms(b, offset, size)
	e.stale = true
}

func (e *RenderEncoder) SetFragmentUniforms(b backend.Buffer, offset, size uint64) {
	e.fsUniforms = e.uniforms(b, offset, size)
	e.stale = true
}

func (e *RenderEncoder) SetFragmentTexture(slot int, t backend.Texture) {
	if slot < 0 || slot >= maxTextureUnits {
		e.fail(fmt.Errorf("native: texture slot %d out of range", slot))
		return
	}
	nt, ok := t.(*Texture)
	if t != nil && !ok {
		e.fail(errForeignObject)
		return
	}
	e.textures[slot] = nt
	e.stale = true
}

func (e *RenderEncoder) SetFragmentSampler(slot int, s backend.Sampler) {
	if slot < 0 || slot >= maxTextureUnits {
		e.fail(fmt.Errorf("native: sampler slot %d out of range", slot))
		return
	}
	ns, ok := s.(*Sampler)
	if s != nil && !ok {
		e.fail(errForeignObject)
		return
	}
	e.samplers[slot] = ns
	e.stale = true
}

// Draw records a non-indexed draw.
func (e *RenderEncoder) Draw(topology gputypes.PrimitiveTopology, start, count uint32) error {
	if err := e.prepare(topology, gputypes.IndexFormatUndefined); err != nil {
		return err
	}
	e.pass.Draw(count, 1, start, 0)
	return nil
}

// DrawIndexed records an indexed draw reading count indices from start.
func (e *RenderEncoder) DrawIndexed(topology gputypes.PrimitiveTopology, ib backend.Buffer, format gputypes.IndexFormat, start, count uint32) error {
	nb, ok := ib.(*Buffer)
	if !ok || nb == nil || nb.destroyed {
		return errForeignObject
	}
	size := uint64(2)
	if format == gputypes.IndexFormatUint32 {
		size = 4
	}
	if (uint64(start)+uint64(count))*size > nb.size {
		return errIndexOutOfData
	}
	if err := e.prepare(topology, format); err != nil {
		return err
	}
	e.pass.SetIndexBuffer(nb.raw, format, 0)
	e.pass.DrawIndexed(count, 1, start, 0, 0)
	return nil
}

// prepare binds the pipeline variant and bind groups a draw needs.
func (e *RenderEncoder) prepare(topology gputypes.PrimitiveTopology, format gputypes.IndexFormat) error {
	if e.ended {
		return errEncoderEnded
	}
	if e.err != nil {
		return e.err
	}
	if e.pipeline == nil {
		return errNoPipeline
	}
	key := variantKey{
		dss:      e.dss,
		cull:     e.cull,
		topology: topology,
		textures: e.textureKey(),
	}
	if isStrip(topology) {
		key.stripIndex = format
	}
	v, err := e.pipeline.variant(key)
	if err != nil {
		return err
	}
	rebind := false
	if v != e.current {
		e.pass.SetPipeline(v.pipeline)
		e.current = v
		rebind = true
	}
	if e.stale || e.groups[0] == nil || key.textures != e.groupsKey {
		if err := e.createGroups(key.textures); err != nil {
			return err
		}
		rebind = true
	}
	if rebind {
		e.pass.SetBindGroup(0, e.groups[0], nil)
		e.pass.SetBindGroup(1, e.groups[1], nil)
	}
	return nil
}

func (e *RenderEncoder) textureKey() textureLayoutKey {
	key := textureLayoutKey{n: e.pipeline.fragment.textureSlots}
	for i := range key.n {
		key.dims[i] = gputypes.TextureViewDimension2D
		if t := e.textures[i]; t != nil && !t.destroyed {
			key.dims[i] = t.viewDimension()
		}
	}
	return key
}

func (e *RenderEncoder) uniformEntry(binding uint32, u uniformBinding) gputypes.BindGroupEntry {
	if u.buf == nil {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: e.cb.dev.zeroUniform.NativeHandle(), Size: copyPitchAlignment},
		}
	}
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: u.buf.NativeHandle(), Offset: u.offset, Size: u.size},
	}
}

// createGroups creates the uniform and texture bind groups for the current
// bindings. Unbound texture slots sample a 1x1 placeholder.
func (e *RenderEncoder) createGroups(key textureLayoutKey) error {
	d := e.cb.dev
	g0, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "gfx_uniforms",
		Layout: d.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			e.uniformEntry(0, e.vsUniforms),
			e.uniformEntry(1, e.fsUniforms),
		},
	})
	if err != nil {
		return fmt.Errorf("native: uniform bind group: %w", mapErr(err))
	}
	e.cb.groups = append(e.cb.groups, g0)

	layout, err := d.textureLayout(key)
	if err != nil {
		return err
	}
	entries := make([]gputypes.BindGroupEntry, 0, 2*key.n)
	for i := range key.n {
		tex := e.textures[i]
		if tex == nil || tex.destroyed {
			tex = d.placeholder
		}
		view, err := tex.view()
		if err != nil {
			return err
		}
		smp := d.defaultSampler
		if s := e.samplers[i]; s != nil && s.raw != nil {
			smp = s.raw
		}
		entries = append(entries,
			gputypes.BindGroupEntry{Binding: uint32(2 * i), Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			gputypes.BindGroupEntry{Binding: uint32(2*i + 1), Resource: gputypes.SamplerBinding{Sampler: smp.NativeHandle()}},
		)
	}
	g1, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "gfx_textures",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("native: texture bind group: %w", mapErr(err))
	}
	e.cb.groups = append(e.cb.groups, g1)

	e.groups = [2]hal.BindGroup{g0, g1}
	e.groupsKey = key
	e.stale = false
	return nil
}

// End closes the pass.
func (e *RenderEncoder) End() error {
	if e.ended {
		return errEncoderEnded
	}
	e.ended = true
	e.pass.End()
	e.cb.open = false
	return e.err
}

// BlitEncoder records texture copies.
type BlitEncoder struct {
	cb    *CommandBuffer
	ended bool
}

// CopyTexture records a region copy. Both regions are validated now.
func (e *BlitEncoder) CopyTexture(src backend.Texture, srcLevel int, srcOrigin backend.Origin,
	dst backend.Texture, dstLevel int, dstOrigin backend.Origin, size backend.Extent,
) error {
	if e.ended {
		return errEncoderEnded
	}
	s, ok := src.(*Texture)
	if !ok {
		return errForeignObject
	}
	d, ok := dst.(*Texture)
	if !ok {
		return errForeignObject
	}
	if s.format != d.format {
		return fmt.Errorf("native: copy between %v and %v: %w", s.format, d.format, backend.ErrUnsupportedFormat)
	}
	srcRegion := backend.Region{Origin: srcOrigin, Extent: size}
	dstRegion := backend.Region{Origin: dstOrigin, Extent: size}
	if _, _, err := s.checkRegion(srcLevel, srcRegion); err != nil {
		return err
	}
	if _, _, err := d.checkRegion(dstLevel, dstRegion); err != nil {
		return err
	}

	enc := e.cb.enc
	srcRest, dstRest := s.restingUsage(), d.restingUsage()
	enc.TransitionTextures([]hal.TextureBarrier{
		{Texture: s.raw, Usage: hal.TextureUsageTransition{OldUsage: srcRest, NewUsage: gputypes.TextureUsageCopySrc}},
		{Texture: d.raw, Usage: hal.TextureUsageTransition{OldUsage: dstRest, NewUsage: gputypes.TextureUsageCopyDst}},
	})
	enc.CopyTextureToTexture(s.raw, d.raw, []hal.TextureCopy{{
		SrcBase: s.copyBase(srcLevel, srcRegion),
		DstBase: d.copyBase(dstLevel, dstRegion),
		Size:    regionExtent(srcRegion),
	}})
	enc.TransitionTextures([]hal.TextureBarrier{
		{Texture: s.raw, Usage: hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageCopySrc, NewUsage: srcRest}},
		{Texture: d.raw, Usage: hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageCopyDst, NewUsage: dstRest}},
	})
	return nil
}

// End closes the blit encoder.
func (e *BlitEncoder) End() error {
	if e.ended {
		return errEncoderEnded
	}
	e.ended = true
	e.cb.open = false
	return nil
}
