package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gfx/backend"
)

// Program limits.
const (
	MaxAttributes = 16
	MaxVaryings   = 8
)

// VertexInput holds the fetched attributes of one vertex by shader location.
type VertexInput struct {
	Attributes [MaxAttributes][4]float32
	// Bound has bit i set when location i has a bound stream.
	Bound       uint32
	VertexIndex uint32
}

// VertexOutput is the clip-space position and varyings of one vertex.
type VertexOutput struct {
	Position [4]float32
	Varyings [MaxVaryings][4]float32
}

// VertexProgram is a CPU vertex shader.
type VertexProgram func(in *VertexInput, uniforms []byte, out *VertexOutput)

// FragmentInput is the interpolated input of one fragment.
type FragmentInput struct {
	Varyings    [MaxVaryings][4]float32
	X, Y        int
	Depth       float32
	FrontFacing bool
}

// Textures gives fragment programs access to bound texture units.
type Textures interface {
	Bound(slot int) bool
	Sample(slot int, u, v float32) [4]float32
}

// FragmentProgram is a CPU fragment shader. Returning discard drops the
// fragment before depth and stencil writes.
type FragmentProgram func(in *FragmentInput, uniforms []byte, tex Textures) (color [4]float32, discard bool)

// Function is a compiled CPU stage.
type Function struct {
	stage    backend.Stage
	vertex   VertexProgram
	fragment FragmentProgram
}

// Stage returns the pipeline stage.
func (f *Function) Stage() backend.Stage { return f.stage }

// Destroy is a no-op.
func (f *Function) Destroy() {}

func newFunction(desc *backend.FunctionDescriptor) (*Function, error) {
	f := &Function{stage: desc.Stage}
	switch desc.Stage {
	case backend.StageVertex:
		switch p := desc.Program.(type) {
		case nil:
			f.vertex = DefaultVertex
		case VertexProgram:
			f.vertex = p
		case func(*VertexInput, []byte, *VertexOutput):
			f.vertex = p
		default:
			return nil, fmt.Errorf("software: %s: %w: program %T is not a vertex program",
				desc.Label, backend.ErrCompile, desc.Program)
		}
	case backend.StageFragment:
		switch p := desc.Program.(type) {
		case nil:
			f.fragment = DefaultFragment
		case FragmentProgram:
			f.fragment = p
		case func(*FragmentInput, []byte, Textures) ([4]float32, bool):
			f.fragment = p
		default:
			return nil, fmt.Errorf("software: %s: %w: program %T is not a fragment program",
				desc.Label, backend.ErrCompile, desc.Program)
		}
	default:
		return nil, fmt.Errorf("software: %s: %w: unknown stage %d", desc.Label, backend.ErrCompile, desc.Stage)
	}
	return f, nil
}

// Mat4 reads a column-major 4x4 float matrix from uniforms at offset.
// Missing bytes yield the identity.
func Mat4(uniforms []byte, offset int) [16]float32 {
	if offset < 0 || offset+64 > len(uniforms) {
		return [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	}
	var m [16]float32
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(uniforms[offset+i*4:]))
	}
	return m
}

// Vec4 reads four floats from uniforms at offset, or def when out of range.
func Vec4(uniforms []byte, offset int, def [4]float32) [4]float32 {
	if offset < 0 || offset+16 > len(uniforms) {
		return def
	}
	var v [4]float32
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(uniforms[offset+i*4:]))
	}
	return v
}

// Transform multiplies a column-major matrix by v.
func Transform(m [16]float32, v [4]float32) [4]float32 {
	var out [4]float32
	for r := range 4 {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// DefaultVertex transforms the position by the matrix at the start of the
// constant block and passes color (varying 0) and the first UV channel
// (varying 1) through. Without a color stream the vertex is white.
func DefaultVertex(in *VertexInput, uniforms []byte, out *VertexOutput) {
	out.Position = Transform(Mat4(uniforms, 0), in.Attributes[backend.LocationPosition])
	if in.Bound&(1<<backend.LocationColor) != 0 {
		out.Varyings[0] = in.Attributes[backend.LocationColor]
	} else {
		out.Varyings[0] = [4]float32{1, 1, 1, 1}
	}
	out.Varyings[1] = in.Attributes[backend.LocationUV0]
}

// DefaultFragment outputs varying 0, modulated by texture unit 0 when one
// is bound.
func DefaultFragment(in *FragmentInput, _ []byte, tex Textures) ([4]float32, bool) {
	c := in.Varyings[0]
	if tex.Bound(0) {
		s := tex.Sample(0, in.Varyings[1][0], in.Varyings[1][1])
		for i := range c {
			c[i] *= s[i]
		}
	}
	return c, false
}
