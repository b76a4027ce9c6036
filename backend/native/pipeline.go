package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/cache"
)

// textureLayoutKey identifies the fragment texture bind group layout.
type textureLayoutKey struct {
	n    int
	dims [maxTextureUnits]gputypes.TextureViewDimension
}

// textureLayout returns the bind group layout for key. Layouts with equal
// keys are compatible, so an evicted layout is simply created again.
func (d *Device) textureLayout(key textureLayoutKey) (hal.BindGroupLayout, error) {
	l, _, err := d.textureLayouts.GetOrCreate(key, func() (hal.BindGroupLayout, error) {
		entries := make([]gputypes.BindGroupLayoutEntry, 0, 2*key.n)
		for i := range key.n {
			entries = append(entries,
				gputypes.BindGroupLayoutEntry{
					Binding:    uint32(2 * i),
					Visibility: gputypes.ShaderStageFragment,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: key.dims[i],
					},
				},
				gputypes.BindGroupLayoutEntry{
					Binding:    uint32(2*i + 1),
					Visibility: gputypes.ShaderStageFragment,
					Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
				},
			)
		}
		l, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "gfx_textures",
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("native: texture layout: %w", mapErr(err))
		}
		return l, nil
	})
	return l, err
}

// variantKey selects one native pipeline of a RenderPipeline.
type variantKey struct {
	dss        *DepthStencilState
	cull       gputypes.CullMode
	topology   gputypes.PrimitiveTopology
	stripIndex gputypes.IndexFormat
	textures   textureLayoutKey
}

// variant is a native pipeline and its layout.
type variant struct {
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

// RenderPipeline is a linked vertex/fragment pair. Native pipelines are
// created per variantKey on first use.
type RenderPipeline struct {
	dev      *Device
	label    string
	vertex   *Function
	fragment *Function
	buffers  []gputypes.VertexBufferLayout

	color     gputypes.TextureFormat
	depth     gputypes.TextureFormat
	blend     *gputypes.BlendState
	writeMask gputypes.ColorWriteMask

	variants  *cache.Cache[variantKey, *variant]
	destroyed bool
}

func (d *Device) newPipeline(desc *backend.RenderPipelineDescriptor) (*RenderPipeline, error) {
	vs, ok := desc.Vertex.(*Function)
	if !ok || vs == nil || vs.stage != backend.StageVertex {
		return nil, fmt.Errorf("native: pipeline %q: missing vertex function", desc.Label)
	}
	fs, ok := desc.Fragment.(*Function)
	if !ok || fs == nil || fs.stage != backend.StageFragment {
		return nil, fmt.Errorf("native: pipeline %q: missing fragment function", desc.Label)
	}
	if len(desc.Buffers) > int(d.limits.MaxVertexBuffers) && d.limits.MaxVertexBuffers > 0 {
		return nil, fmt.Errorf("native: pipeline %q: %d vertex buffers exceed %d",
			desc.Label, len(desc.Buffers), d.limits.MaxVertexBuffers)
	}
	buffers := make([]gputypes.VertexBufferLayout, len(desc.Buffers))
	for i, b := range desc.Buffers {
		if b.Format == gputypes.VertexFormatUndefined {
			return nil, fmt.Errorf("native: pipeline %q: buffer %d: %w", desc.Label, i, backend.ErrUnsupportedFormat)
		}
		buffers[i] = gputypes.VertexBufferLayout{
			ArrayStride: b.Stride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{{
				Format:         b.Format,
				ShaderLocation: b.Location,
			}},
		}
	}

	p := &RenderPipeline{
		dev:       d,
		label:     desc.Label,
		vertex:    vs,
		fragment:  fs,
		buffers:   buffers,
		color:     desc.ColorFormat,
		depth:     desc.DepthStencilFormat,
		writeMask: desc.WriteMask,
	}
	if desc.Blend != nil {
		p.blend = &gputypes.BlendState{
			Color: gputypes.BlendComponent(desc.Blend.Color),
			Alpha: gputypes.BlendComponent(desc.Blend.Alpha),
		}
	}
	p.variants = cache.New(d.cfg.pipelineVariants(), func(_ variantKey, v *variant) {
		d.retire(v.destroy)
	})
	return p, nil
}

// variant returns the native pipeline for key, creating it on first use.
func (p *RenderPipeline) variant(key variantKey) (*variant, error) {
	if p.destroyed {
		return nil, backend.ErrDestroyed
	}
	v, hit, err := p.variants.GetOrCreate(key, func() (*variant, error) { return p.build(key) })
	if err == nil && !hit {
		slogger().Debug("pipeline variant created", "label", p.label,
			"topology", key.topology, "cull", key.cull, "variants", p.variants.Len())
	}
	return v, err
}

func (p *RenderPipeline) build(key variantKey) (*variant, error) {
	d := p.dev
	texLayout, err := d.textureLayout(key.textures)
	if err != nil {
		return nil, err
	}
	layout, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label,
		BindGroupLayouts: []hal.BindGroupLayout{d.uniformLayout, texLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("native: pipeline %q layout: %w", p.label, mapErr(err))
	}

	var strip *gputypes.IndexFormat
	if key.stripIndex != gputypes.IndexFormatUndefined {
		f := key.stripIndex
		strip = &f
	}
	var ds *hal.DepthStencilState
	if p.depth != gputypes.TextureFormatUndefined {
		var desc *backend.DepthStencilDescriptor
		if key.dss != nil {
			desc = &key.dss.desc
		}
		ds = halDepthStencil(p.depth, desc)
	}

	raw, err := d.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  p.label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     p.vertex.module,
			EntryPoint: p.vertex.entry,
			Buffers:    p.buffers,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:         key.topology,
			StripIndexFormat: strip,
			FrontFace:        gputypes.FrontFaceCCW,
			CullMode:         key.cull,
		},
		DepthStencil: ds,
		Multisample:  gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     p.fragment.module,
			EntryPoint: p.fragment.entry,
			Targets: []gputypes.ColorTargetState{{
				Format:    p.color,
				Blend:     p.blend,
				WriteMask: p.writeMask,
			}},
		},
	})
	if err != nil {
		d.dev.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("native: pipeline %q: %w", p.label, mapErr(err))
	}
	return &variant{layout: layout, pipeline: raw}, nil
}

func (v *variant) destroy(dev hal.Device) {
	dev.DestroyRenderPipeline(v.pipeline)
	dev.DestroyPipelineLayout(v.layout)
}

// Destroy releases every variant once in-flight work is done with them.
func (p *RenderPipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.variants.Purge()
}

// isStrip reports whether t restarts on a strip index value.
func isStrip(t gputypes.PrimitiveTopology) bool {
	return t == gputypes.PrimitiveTopologyLineStrip || t == gputypes.PrimitiveTopologyTriangleStrip
}
