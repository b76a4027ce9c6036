package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// RenderPipeline is a linked vertex and fragment program with blend state.
type RenderPipeline struct {
	label     string
	vertex    VertexProgram
	fragment  FragmentProgram
	buffers   []backend.VertexBufferLayout
	format    gputypes.TextureFormat
	blend     *backend.BlendState
	writeMask gputypes.ColorWriteMask
}

// Destroy is a no-op.
func (p *RenderPipeline) Destroy() {}

func newPipeline(desc *backend.RenderPipelineDescriptor) (*RenderPipeline, error) {
	vs, ok := desc.Vertex.(*Function)
	if !ok || vs.stage != backend.StageVertex {
		return nil, fmt.Errorf("software: pipeline %q: %w: missing vertex function", desc.Label, backend.ErrCompile)
	}
	fs, ok := desc.Fragment.(*Function)
	if !ok || fs.stage != backend.StageFragment {
		return nil, fmt.Errorf("software: pipeline %q: %w: missing fragment function", desc.Label, backend.ErrCompile)
	}
	if !renderable(desc.ColorFormat) {
		return nil, fmt.Errorf("software: pipeline %q: %w: color format %v", desc.Label, backend.ErrUnsupportedFormat, desc.ColorFormat)
	}
	for _, b := range desc.Buffers {
		if b.Location >= MaxAttributes {
			return nil, fmt.Errorf("software: pipeline %q: %w: location %d out of range", desc.Label, backend.ErrCompile, b.Location)
		}
		if components(b.Format) == 0 {
			return nil, fmt.Errorf("software: pipeline %q: %w: vertex format %v", desc.Label, backend.ErrUnsupportedFormat, b.Format)
		}
	}

	p := &RenderPipeline{
		label:     desc.Label,
		vertex:    vs.vertex,
		fragment:  fs.fragment,
		buffers:   append([]backend.VertexBufferLayout(nil), desc.Buffers...),
		format:    desc.ColorFormat,
		writeMask: desc.WriteMask,
	}
	if desc.Blend != nil {
		b := *desc.Blend
		p.blend = &b
	}
	slogger().Debug("pipeline linked", "label", desc.Label, "buffers", len(desc.Buffers))
	return p, nil
}

// components returns the float count of a supported vertex format.
func components(f gputypes.VertexFormat) int {
	switch f {
	case gputypes.VertexFormatFloat32:
		return 1
	case gputypes.VertexFormatFloat32x2:
		return 2
	case gputypes.VertexFormatFloat32x3:
		return 3
	case gputypes.VertexFormatFloat32x4:
		return 4
	}
	return 0
}

// DepthStencilState is a depth and stencil configuration.
type DepthStencilState struct {
	desc backend.DepthStencilDescriptor
}

// Destroy is a no-op.
func (s *DepthStencilState) Destroy() {}

// defaultDepthStencil disables both tests.
var defaultDepthStencil = &DepthStencilState{desc: backend.DepthStencilDescriptor{
	DepthCompare: gputypes.CompareFunctionAlways,
}}
