package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/parallel"
)

// minBandRows keeps small triangles on the calling goroutine.
const minBandRows = 32

// rasterizer executes one recorded draw.
type rasterizer struct {
	pool  *parallel.WorkerPool
	color *Texture
	ds    *Texture
	st    *drawState

	fsUniforms []byte
	x0, y0     int
	x1, y1     int
}

// screenVertex is a vertex after perspective divide and viewport mapping.
// Varyings are pre-divided by w for perspective-correct interpolation.
type screenVertex struct {
	x, y, z, invW float32
	vary          [MaxVaryings][4]float32
}

type textureUnits struct{ st *drawState }

func (u textureUnits) Bound(slot int) bool {
	return slot >= 0 && slot < maxTextureUnits && u.st.textures[slot] != nil
}

func (u textureUnits) Sample(slot int, s, t float32) [4]float32 {
	if !u.Bound(slot) {
		return [4]float32{0, 0, 0, 1}
	}
	smp := u.st.samplers[slot]
	if smp == nil {
		smp = defaultSampler
	}
	return smp.sample(u.st.textures[slot], s, t)
}

func (r *rasterizer) draw(topology gputypes.PrimitiveTopology, start, count uint32, indices []uint32) error {
	if r.color.destroyed {
		return backend.ErrDestroyed
	}
	verts, err := r.shadeVertices(start, count, indices)
	if err != nil {
		return err
	}
	r.fsUniforms = r.st.fsUniforms.bytes()
	r.computeClip()
	if r.x0 >= r.x1 || r.y0 >= r.y1 {
		return nil
	}

	n := len(verts)
	switch topology {
	case gputypes.PrimitiveTopologyTriangleList:
		for i := 0; i+2 < n; i += 3 {
			r.triangle(&verts[i], &verts[i+1], &verts[i+2])
		}
	case gputypes.PrimitiveTopologyTriangleStrip:
		for i := 0; i+2 < n; i++ {
			if i%2 == 0 {
				r.triangle(&verts[i], &verts[i+1], &verts[i+2])
			} else {
				r.triangle(&verts[i+1], &verts[i], &verts[i+2])
			}
		}
	case gputypes.PrimitiveTopologyLineList:
		for i := 0; i+1 < n; i += 2 {
			r.line(&verts[i], &verts[i+1])
		}
	case gputypes.PrimitiveTopologyLineStrip:
		for i := 0; i+1 < n; i++ {
			r.line(&verts[i], &verts[i+1])
		}
	case gputypes.PrimitiveTopologyPointList:
		for i := range verts {
			r.point(&verts[i])
		}
	default:
		return fmt.Errorf("software: unsupported topology %v", topology)
	}
	return nil
}

// shadeVertices fetches attributes and runs the vertex program.
func (r *rasterizer) shadeVertices(start, count uint32, indices []uint32) ([]VertexOutput, error) {
	p := r.st.pipeline
	uniforms := r.st.vsUniforms.bytes()
	out := make([]VertexOutput, count)

	for i := range out {
		idx := start + uint32(i)
		if indices != nil {
			idx = indices[i]
		}
		in := VertexInput{VertexIndex: idx}
		for l := range in.Attributes {
			in.Attributes[l] = [4]float32{0, 0, 0, 1}
		}
		for slot, layout := range p.buffers {
			b := r.st.vertex[slot]
			data := b.buf.bytes()
			if data == nil {
				return nil, fmt.Errorf("software: pipeline %q: no vertex buffer at slot %d", p.label, slot)
			}
			comps := components(layout.Format)
			off := b.offset + uint64(idx)*layout.Stride
			if off+uint64(comps*4) > uint64(len(data)) {
				return nil, fmt.Errorf("software: vertex %d reads past buffer at slot %d", idx, slot)
			}
			attr := &in.Attributes[layout.Location]
			for c := range comps {
				attr[c] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+uint64(c*4):]))
			}
			in.Bound |= 1 << layout.Location
		}
		p.vertex(&in, uniforms, &out[i])
	}
	return out, nil
}

// computeClip intersects the viewport, target and scissor rectangles.
func (r *rasterizer) computeClip() {
	vp := r.st.viewport
	r.x0 = max(0, int(math.Floor(float64(vp.X))))
	r.y0 = max(0, int(math.Floor(float64(vp.Y))))
	r.x1 = min(r.color.width, int(math.Ceil(float64(vp.X+vp.Width))))
	r.y1 = min(r.color.height, int(math.Ceil(float64(vp.Y+vp.Height))))
	if r.st.hasScissor {
		s := r.st.scissor
		r.x0 = max(r.x0, s.X)
		r.y0 = max(r.y0, s.Y)
		r.x1 = min(r.x1, s.X+s.Width)
		r.y1 = min(r.y1, s.Y+s.Height)
	}
}

// project performs the perspective divide and viewport transform.
// Vertices behind the eye are rejected.
func (r *rasterizer) project(v *VertexOutput) (screenVertex, bool) {
	w := v.Position[3]
	if w <= 0 {
		return screenVertex{}, false
	}
	inv := 1 / w
	vp := r.st.viewport
	sv := screenVertex{
		x:    vp.X + (v.Position[0]*inv+1)*0.5*vp.Width,
		y:    vp.Y + (1-v.Position[1]*inv)*0.5*vp.Height,
		z:    vp.MinDepth + v.Position[2]*inv*(vp.MaxDepth-vp.MinDepth),
		invW: inv,
	}
	for k := range sv.vary {
		for c := range 4 {
			sv.vary[k][c] = v.Varyings[k][c] * inv
		}
	}
	return sv, true
}

func edge(a, b *screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether a zero edge value from a to b belongs to the
// triangle, for triangles with positive area in y-down space.
func topLeft(a, b *screenVertex) bool {
	dy := b.y - a.y
	return dy < 0 || (dy == 0 && b.x > a.x)
}

func covers(w float32, a, b *screenVertex) bool {
	return w > 0 || (w == 0 && topLeft(a, b))
}

func (r *rasterizer) triangle(v0, v1, v2 *VertexOutput) {
	a, ok0 := r.project(v0)
	b, ok1 := r.project(v1)
	c, ok2 := r.project(v2)
	if !ok0 || !ok1 || !ok2 {
		return
	}

	area := edge(&a, &b, c.x, c.y)
	if area == 0 {
		return
	}
	// Counter-clockwise in y-up clip space has negative area in y-down
	// pixel space.
	front := area < 0
	switch r.st.cull {
	case gputypes.CullModeFront:
		if front {
			return
		}
	case gputypes.CullModeBack:
		if !front {
			return
		}
	}
	if area < 0 {
		b, c = c, b
		area = -area
	}

	minX := max(r.x0, int(math.Floor(float64(min(a.x, b.x, c.x)))))
	maxX := min(r.x1, int(math.Ceil(float64(max(a.x, b.x, c.x)))))
	minY := max(r.y0, int(math.Floor(float64(min(a.y, b.y, c.y)))))
	maxY := min(r.y1, int(math.Ceil(float64(max(a.y, b.y, c.y)))))
	if minX >= maxX || minY >= maxY {
		return
	}

	inv := 1 / area
	r.pool.Bands(maxY-minY, minBandRows, func(by0, by1 int) {
		var in FragmentInput
		in.FrontFacing = front
		for y := minY + by0; y < minY+by1; y++ {
			py := float32(y) + 0.5
			for x := minX; x < maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(&b, &c, px, py)
				w1 := edge(&c, &a, px, py)
				w2 := edge(&a, &b, px, py)
				if !covers(w0, &b, &c) || !covers(w1, &c, &a) || !covers(w2, &a, &b) {
					continue
				}
				l0, l1, l2 := w0*inv, w1*inv, w2*inv
				z := l0*a.z + l1*b.z + l2*c.z
				invW := l0*a.invW + l1*b.invW + l2*c.invW
				for k := range in.Varyings {
					for ch := range 4 {
						in.Varyings[k][ch] = (l0*a.vary[k][ch] + l1*b.vary[k][ch] + l2*c.vary[k][ch]) / invW
					}
				}
				in.X, in.Y, in.Depth = x, y, z
				r.fragment(&in)
			}
		}
	})
}

func (r *rasterizer) line(v0, v1 *VertexOutput) {
	a, ok0 := r.project(v0)
	b, ok1 := r.project(v1)
	if !ok0 || !ok1 {
		return
	}
	dx, dy := b.x-a.x, b.y-a.y
	steps := int(math.Ceil(float64(max(abs32(dx), abs32(dy)))))
	if steps == 0 {
		r.point(v0)
		return
	}

	in := FragmentInput{FrontFacing: true}
	for i := 0; i <= steps; i++ {
		t := float32(i) / float32(steps)
		x := int(math.Floor(float64(a.x + dx*t)))
		y := int(math.Floor(float64(a.y + dy*t)))
		if x < r.x0 || x >= r.x1 || y < r.y0 || y >= r.y1 {
			continue
		}
		invW := a.invW + (b.invW-a.invW)*t
		for k := range in.Varyings {
			for ch := range 4 {
				in.Varyings[k][ch] = (a.vary[k][ch] + (b.vary[k][ch]-a.vary[k][ch])*t) / invW
			}
		}
		in.X, in.Y, in.Depth = x, y, a.z+(b.z-a.z)*t
		r.fragment(&in)
	}
}

func (r *rasterizer) point(v *VertexOutput) {
	s, ok := r.project(v)
	if !ok {
		return
	}
	x, y := int(math.Floor(float64(s.x))), int(math.Floor(float64(s.y)))
	if x < r.x0 || x >= r.x1 || y < r.y0 || y >= r.y1 {
		return
	}
	in := FragmentInput{X: x, Y: y, Depth: s.z, FrontFacing: true}
	for k := range in.Varyings {
		for ch := range 4 {
			in.Varyings[k][ch] = s.vary[k][ch] / s.invW
		}
	}
	r.fragment(&in)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// fragment runs the per-sample tests, the fragment program and blending
// for one covered pixel.
func (r *rasterizer) fragment(in *FragmentInput) {
	p := r.st.pipeline
	ds := r.ds
	dss := &r.st.dss.desc
	idx := in.Y*r.color.width + in.X

	stencilOn := ds != nil && dss.StencilEnabled
	depthOn := ds != nil && dss.DepthTestEnabled

	face := &dss.StencilFront
	if !in.FrontFacing {
		face = &dss.StencilBack
	}
	ref := r.st.stencilRef
	if stencilOn {
		mask := uint8(dss.StencilReadMask)
		cur := ds.stencilPlane[idx]
		if !compare(face.Compare, float32(ref&mask), float32(cur&mask)) {
			r.writeStencil(idx, face.FailOp, ref)
			return
		}
	}
	if depthOn && !compare(dss.DepthCompare, in.Depth, ds.depthPlane[idx]) {
		if stencilOn {
			r.writeStencil(idx, face.DepthFailOp, ref)
		}
		return
	}

	col, discard := p.fragment(in, r.fsUniforms, textureUnits{st: r.st})
	if discard {
		return
	}
	if stencilOn {
		r.writeStencil(idx, face.PassOp, ref)
	}
	if ds != nil && dss.DepthWriteEnabled {
		ds.depthPlane[idx] = in.Depth
	}

	px := r.color.texel(in.X, in.Y)
	dst := decodeTexel(r.color.format, px)
	out := applyWriteMask(p.writeMask, blend(p.blend, col, dst), dst)
	encodeTexel(r.color.format, out, px)
}

func (r *rasterizer) writeStencil(idx int, op backend.StencilOp, ref uint8) {
	wmask := uint8(r.st.dss.desc.StencilWriteMask)
	cur := r.ds.stencilPlane[idx]
	r.ds.stencilPlane[idx] = cur&^wmask | stencilApply(op, cur, ref)&wmask
}
