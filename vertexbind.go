package gfx

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// Stream identifies a vertex attribute stream.
type Stream uint8

const (
	StreamPosition Stream = iota
	StreamNormal
	StreamColor
	StreamTangent
	// StreamUV0 is the first UV channel; channel i is StreamUV0+i.
	StreamUV0
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case StreamPosition:
		return "position"
	case StreamNormal:
		return "normal"
	case StreamColor:
		return "color"
	case StreamTangent:
		return "tangent"
	default:
		return "uv" + strconv.Itoa(int(s-StreamUV0))
	}
}

// VertexStreams is the set of streams a vertex buffer provides. Position
// is always present.
type VertexStreams struct {
	Normals  bool
	Colors   bool
	Tangents bool
	// UVWidths is the component width of each UV channel.
	UVWidths []int
}

func (s VertexStreams) equal(o VertexStreams) bool {
	return s.Normals == o.Normals && s.Colors == o.Colors && s.Tangents == o.Tangents &&
		slices.Equal(s.UVWidths, o.UVWidths)
}

// VertexBinding is one resolved vertex buffer slot.
type VertexBinding struct {
	Stream Stream
	Layout backend.VertexBufferLayout
}

// ResolveVertexBindings matches a vertex shader's inputs against the
// streams a buffer provides. Slot 0 is always position, followed by
// normal, color and tangent when the shader reads them, then one slot per
// UV channel the shader reads. A stream the shader needs but the buffer
// lacks is an *AttributeError.
func ResolveVertexBindings(in VertexInputs, avail VertexStreams) ([]VertexBinding, error) {
	if in.UVs < 0 || in.UVs > MaxUVChannels {
		return nil, fmt.Errorf("gfx: resolve vertex bindings: %w: %d UV channels", ErrInvalidArgument, in.UVs)
	}
	out := make([]VertexBinding, 0, in.NumBuffersExpected())
	out = append(out, VertexBinding{
		Stream: StreamPosition,
		Layout: backend.VertexBufferLayout{Stride: 12, Format: gputypes.VertexFormatFloat32x3, Location: backend.LocationPosition},
	})

	optional := []struct {
		need, have bool
		name       string
		stream     Stream
		layout     backend.VertexBufferLayout
	}{
		{in.Normals, avail.Normals, "normal", StreamNormal,
			backend.VertexBufferLayout{Stride: 12, Format: gputypes.VertexFormatFloat32x3, Location: backend.LocationNormal}},
		{in.Colors, avail.Colors, "color", StreamColor,
			backend.VertexBufferLayout{Stride: 16, Format: gputypes.VertexFormatFloat32x4, Location: backend.LocationColor}},
		{in.Tangents, avail.Tangents, "tangent", StreamTangent,
			backend.VertexBufferLayout{Stride: 12, Format: gputypes.VertexFormatFloat32x3, Location: backend.LocationTangent}},
	}
	for _, o := range optional {
		if !o.need {
			continue
		}
		if !o.have {
			return nil, &AttributeError{Attribute: o.name, Required: 1, Available: 0}
		}
		out = append(out, VertexBinding{Stream: o.stream, Layout: o.layout})
	}

	if in.UVs > len(avail.UVWidths) {
		return nil, &AttributeError{Attribute: "uv", Required: in.UVs, Available: len(avail.UVWidths)}
	}
	for i := range in.UVs {
		w := avail.UVWidths[i]
		format := gputypes.VertexFormatFloat32x2
		if w == 4 {
			format = gputypes.VertexFormatFloat32x4
		}
		out = append(out, VertexBinding{
			Stream: StreamUV0 + Stream(i),
			Layout: backend.VertexBufferLayout{
				Stride:   uint64(w * 4),
				Format:   format,
				Location: uint32(backend.LocationUV0 + i),
			},
		})
	}

	if want := in.NumBuffersExpected(); len(out) != want {
		return nil, fmt.Errorf("gfx: resolved %d vertex bindings, expected %d", len(out), want)
	}
	return out, nil
}

// vertexBindingCache remembers the bindings of the last (buffer, shader)
// pair so consecutive draws skip resolution.
type vertexBindingCache struct {
	vb       *VertexBuffer
	vs       *Shader
	version  uint64
	bindings []VertexBinding
	layout   vertexLayout

	// resolves counts executed resolutions.
	resolves int
}

// lookup returns the bindings for (vb, vs), resolving them only when the
// pair or the buffer's stream set changed.
func (c *vertexBindingCache) lookup(vb *VertexBuffer, vs *Shader) ([]VertexBinding, *vertexLayout, error) {
	if c.vb == vb && c.vs == vs && c.version == vb.version && c.bindings != nil {
		return c.bindings, &c.layout, nil
	}
	c.resolves++
	bindings, err := ResolveVertexBindings(vs.Inputs(), vb.Streams())
	if err != nil {
		c.reset()
		return nil, nil, err
	}
	c.vb, c.vs, c.version = vb, vs, vb.version
	c.bindings = bindings
	c.layout = vertexLayout{n: len(bindings)}
	for i, b := range bindings {
		c.layout.streams[i] = b.Layout
	}
	return c.bindings, &c.layout, nil
}

func (c *vertexBindingCache) reset() {
	c.vb, c.vs, c.version, c.bindings = nil, nil, 0, nil
	c.layout = vertexLayout{}
}
