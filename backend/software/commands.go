package software

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

var (
	errEncoderOpen    = errors.New("software: another encoder is still open")
	errCommitted      = errors.New("software: command buffer already committed")
	errNoPipeline     = errors.New("software: draw without pipeline")
	errEncoderEnded   = errors.New("software: encoder already ended")
	errBadAttachment  = errors.New("software: attachment is not a software texture")
	errForeignObject  = errors.New("software: object belongs to another backend")
	errIndexOutOfData = errors.New("software: index range exceeds index buffer")
)

// CommandBuffer records operations and runs them on Commit.
type CommandBuffer struct {
	dev       *Device
	ops       []func() error
	open      bool
	committed bool
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
	if !renderable(color.format) {
		return nil, fmt.Errorf("software: pass %q: %w", desc.Label, backend.ErrUnsupportedFormat)
	}
	var ds *Texture
	if desc.DepthStencil != nil {
		if ds, ok = desc.DepthStencil.(*Texture); !ok || ds.depthPlane == nil {
			return nil, errBadAttachment
		}
		if ds.width != color.width || ds.height != color.height {
			return nil, fmt.Errorf("software: pass %q: depth-stencil %dx%d does not match color %dx%d",
				desc.Label, ds.width, ds.height, color.width, color.height)
		}
	}

	d := *desc
	cb.ops = append(cb.ops, func() error { return loadAttachments(color, ds, &d) })
	cb.open = true

	return &RenderEncoder{
		cb:    cb,
		color: color,
		ds:    ds,
		state: drawState{
			viewport: backend.Viewport{
				Width:    float32(color.width),
				Height:   float32(color.height),
				MaxDepth: 1,
			},
			dss: defaultDepthStencil,
		},
	}, nil
}

func loadAttachments(color, ds *Texture, desc *backend.RenderPassDescriptor) error {
	if color.destroyed {
		return backend.ErrDestroyed
	}
	if desc.ColorLoad == gputypes.LoadOpClear {
		c := [4]float32{
			float32(desc.ClearColor.R), float32(desc.ClearColor.G),
			float32(desc.ClearColor.B), float32(desc.ClearColor.A),
		}
		bpp := backend.BytesPerPixel(color.format)
		px := make([]byte, bpp)
		encodeTexel(color.format, c, px)
		level := color.levels[0]
		for off := 0; off < len(level); off += bpp {
			copy(level[off:off+bpp], px)
		}
	}
	if ds == nil {
		return nil
	}
	if desc.DepthLoad == gputypes.LoadOpClear {
		for i := range ds.depthPlane {
			ds.depthPlane[i] = desc.ClearDepth
		}
	}
	if desc.StencilLoad == gputypes.LoadOpClear {
		s := uint8(desc.ClearStencil)
		for i := range ds.stencilPlane {
			ds.stencilPlane[i] = s
		}
	}
	return nil
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

// Commit runs every recorded operation and queues the completion callback.
func (cb *CommandBuffer) Commit(onComplete func(error)) error {
	if cb.committed {
		return errCommitted
	}
	cb.committed = true

	var err error
	switch {
	case cb.open:
		err = errEncoderOpen
	case cb.dev.isLost():
		err = backend.ErrDeviceLost
	default:
		for _, op := range cb.ops {
			if err = op(); err != nil {
				break
			}
		}
	}
	cb.ops = nil
	cb.dev.submit(onComplete, err)
	return err
}

type bufferBinding struct {
	buf    *Buffer
	offset uint64
}

type uniformBinding struct {
	buf          *Buffer
	offset, size uint64
}

// bytes returns the bound uniform range, or nil.
func (u uniformBinding) bytes() []byte {
	data := u.buf.bytes()
	if data == nil || u.offset >= uint64(len(data)) {
		return nil
	}
	end := min(u.offset+u.size, uint64(len(data)))
	return data[u.offset:end]
}

// drawState is the encoder state captured by each draw.
type drawState struct {
	pipeline   *RenderPipeline
	dss        *DepthStencilState
	viewport   backend.Viewport
	scissor    backend.Rect
	hasScissor bool
	cull       gputypes.CullMode
	stencilRef uint8

	vertex     [maxVertexSlots]bufferBinding
	vsUniforms uniformBinding
	fsUniforms uniformBinding
	textures   [maxTextureUnits]*Texture
	samplers   [maxTextureUnits]*Sampler
}

// RenderEncoder records draws into a render pass.
type RenderEncoder struct {
	cb    *CommandBuffer
	color *Texture
	ds    *Texture
	state drawState
	ended bool
	err   error
}

func (e *RenderEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *RenderEncoder) SetPipeline(p backend.RenderPipeline) {
	sp, ok := p.(*RenderPipeline)
	if !ok {
		e.fail(errForeignObject)
		return
	}
	e.state.pipeline = sp
}

func (e *RenderEncoder) SetDepthStencilState(s backend.DepthStencilState) {
	if s == nil {
		e.state.dss = defaultDepthStencil
		return
	}
	ss, ok := s.(*DepthStencilState)
	if !ok {
		e.fail(errForeignObject)
		return
	}
	e.state.dss = ss
}

func (e *RenderEncoder) SetViewport(v backend.Viewport) { e.state.viewport = v }

func (e *RenderEncoder) SetScissorRect(r *backend.Rect) {
	if r == nil {
		e.state.hasScissor = false
		return
	}
	e.state.scissor = *r
	e.state.hasScissor = true
}

func (e *RenderEncoder) SetCullMode(mode gputypes.CullMode) { e.state.cull = mode }

func (e *RenderEncoder) SetStencilReference(ref uint32) { e.state.stencilRef = uint8(ref) }

func (e *RenderEncoder) SetVertexBuffer(slot int, b backend.Buffer, offset uint64) {
	if slot < 0 || slot >= maxVertexSlots {
		e.fail(fmt.Errorf("software: vertex slot %d out of range", slot))
		return
	}
	sb, _ := b.(*Buffer)
	e.state.vertex[slot] = bufferBinding{buf: sb, offset: offset}
}

func (e *RenderEncoder) SetVertexUniforms(b backend.Buffer, offset, size uint64) {
	sb, _ := b.(*Buffer)
	e.state.vsUniforms = uniformBinding{buf: sb, offset: offset, size: size}
}

func (e *RenderEncoder) SetFragmentUniforms(b backend.Buffer, offset, size uint64) {
	sb, _ := b.(*Buffer)
	e.state.fsUniforms = uniformBinding{buf: sb, offset: offset, size: size}
}

func (e *RenderEncoder) SetFragmentTexture(slot int, t backend.Texture) {
	if slot < 0 || slot >= maxTextureUnits {
		e.fail(fmt.Errorf("software: texture slot %d out of range", slot))
		return
	}
	st, _ := t.(*Texture)
	e.state.textures[slot] = st
}

func (e *RenderEncoder) SetFragmentSampler(slot int, s backend.Sampler) {
	if slot < 0 || slot >= maxTextureUnits {
		e.fail(fmt.Errorf("software: sampler slot %d out of range", slot))
		return
	}
	ss, _ := s.(*Sampler)
	e.state.samplers[slot] = ss
}

// Draw records a non-indexed draw.
func (e *RenderEncoder) Draw(topology gputypes.PrimitiveTopology, start, count uint32) error {
	return e.record(topology, nil, 0, start, count)
}

// DrawIndexed records an indexed draw reading count indices from start.
func (e *RenderEncoder) DrawIndexed(topology gputypes.PrimitiveTopology, ib backend.Buffer, format gputypes.IndexFormat, start, count uint32) error {
	sb, ok := ib.(*Buffer)
	if !ok || sb == nil {
		return errForeignObject
	}
	return e.record(topology, sb, format, start, count)
}

func (e *RenderEncoder) record(topology gputypes.PrimitiveTopology, ib *Buffer, format gputypes.IndexFormat, start, count uint32) error {
	if e.ended {
		return errEncoderEnded
	}
	if e.err != nil {
		return e.err
	}
	if e.state.pipeline == nil {
		return errNoPipeline
	}
	snap := e.state
	color, ds, pool := e.color, e.ds, e.cb.dev.pool
	e.cb.ops = append(e.cb.ops, func() error {
		r := rasterizer{pool: pool, color: color, ds: ds, st: &snap}
		indices, err := fetchIndices(ib, format, start, count)
		if err != nil {
			return err
		}
		return r.draw(topology, start, count, indices)
	})
	return nil
}

func fetchIndices(ib *Buffer, format gputypes.IndexFormat, start, count uint32) ([]uint32, error) {
	if ib == nil {
		return nil, nil
	}
	data := ib.bytes()
	size := uint64(2)
	if format == gputypes.IndexFormatUint32 {
		size = 4
	}
	if (uint64(start)+uint64(count))*size > uint64(len(data)) {
		return nil, errIndexOutOfData
	}
	out := make([]uint32, count)
	for i := range out {
		off := (uint64(start) + uint64(i)) * size
		if size == 2 {
			out[i] = uint32(data[off]) | uint32(data[off+1])<<8
		} else {
			out[i] = uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		}
	}
	return out, nil
}

// End closes the pass.
func (e *RenderEncoder) End() error {
	if e.ended {
		return errEncoderEnded
	}
	e.ended = true
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
		return fmt.Errorf("software: copy between %v and %v: %w", s.format, d.format, backend.ErrUnsupportedFormat)
	}
	srcRegion := backend.Region{Origin: srcOrigin, Extent: size}
	dstRegion := backend.Region{Origin: dstOrigin, Extent: size}
	_, rowLen, rows, err := s.checkRegion(srcLevel, srcRegion)
	if err != nil {
		return err
	}
	if _, _, _, err := d.checkRegion(dstLevel, dstRegion); err != nil {
		return err
	}

	depth := max(size.Depth, 1)
	e.cb.ops = append(e.cb.ops, func() error {
		tmp := make([]byte, rowLen*rows*depth)
		if err := s.Read(srcLevel, srcRegion, tmp, rowLen); err != nil {
			return err
		}
		return d.Replace(dstLevel, dstRegion, tmp, rowLen)
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
