package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

// Sampler is a HAL sampler.
type Sampler struct {
	dev *Device
	raw hal.Sampler
}

func (d *Device) newSampler(desc *backend.SamplerDescriptor) (*Sampler, error) {
	raw, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
		LodMaxClamp:  32,
		Compare:      desc.Compare,
		Anisotropy:   max(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("native: sampler %q: %w", desc.Label, mapErr(err))
	}
	return &Sampler{dev: d, raw: raw}, nil
}

// Destroy releases the HAL sampler.
func (s *Sampler) Destroy() {
	if s.raw != nil {
		s.dev.dev.DestroySampler(s.raw)
		s.raw = nil
	}
}

// Function is a compiled shader module.
type Function struct {
	dev          *Device
	module       hal.ShaderModule
	stage        backend.Stage
	entry        string
	textureSlots int
}

// newFunction compiles desc.Source with naga. A []uint32 Program is taken
// as precompiled SPIR-V.
func (d *Device) newFunction(desc *backend.FunctionDescriptor) (*Function, error) {
	spirv, ok := desc.Program.([]uint32)
	if !ok {
		if desc.Source == "" {
			return nil, fmt.Errorf("native: %s function %q: no source: %w", desc.Stage, desc.Label, backend.ErrCompile)
		}
		var err error
		spirv, err = compileWGSL(desc.Source)
		if err != nil {
			return nil, fmt.Errorf("native: %s function %q: %w: %v", desc.Stage, desc.Label, backend.ErrCompile, err)
		}
	}
	if len(spirv) == 0 {
		return nil, fmt.Errorf("native: %s function %q: empty SPIR-V: %w", desc.Stage, desc.Label, backend.ErrCompile)
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("native: %s function %q: %w: %v", desc.Stage, desc.Label, backend.ErrCompile, mapErr(err))
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	slogger().Debug("function compiled", "label", desc.Label, "stage", desc.Stage.String(), "words", len(spirv))
	return &Function{
		dev:          d,
		module:       module,
		stage:        desc.Stage,
		entry:        entry,
		textureSlots: min(desc.TextureSlots, d.textureUnits()),
	}, nil
}

// compileWGSL compiles WGSL to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// Stage returns the pipeline stage.
func (f *Function) Stage() backend.Stage { return f.stage }

// Destroy releases the shader module.
func (f *Function) Destroy() {
	if f.module != nil {
		f.dev.dev.DestroyShaderModule(f.module)
		f.module = nil
	}
}

// DepthStencilState holds a depth-stencil configuration. HAL pipelines bake
// it in, so it only contributes to the pipeline variant key.
type DepthStencilState struct {
	desc backend.DepthStencilDescriptor
}

// Destroy is a no-op.
func (s *DepthStencilState) Destroy() {}

var stencilOps = [...]hal.StencilOperation{
	backend.StencilKeep:      hal.StencilOperationKeep,
	backend.StencilZero:      hal.StencilOperationZero,
	backend.StencilReplace:   hal.StencilOperationReplace,
	backend.StencilIncrClamp: hal.StencilOperationIncrementClamp,
	backend.StencilDecrClamp: hal.StencilOperationDecrementClamp,
	backend.StencilInvert:    hal.StencilOperationInvert,
	backend.StencilIncrWrap:  hal.StencilOperationIncrementWrap,
	backend.StencilDecrWrap:  hal.StencilOperationDecrementWrap,
}

func halStencilOp(op backend.StencilOp) hal.StencilOperation {
	if int(op) < len(stencilOps) {
		return stencilOps[op]
	}
	return hal.StencilOperationKeep
}

func halStencilFace(f backend.StencilFace) hal.StencilFaceState {
	cmp := f.Compare
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      halStencilOp(f.FailOp),
		DepthFailOp: halStencilOp(f.DepthFailOp),
		PassOp:      halStencilOp(f.PassOp),
	}
}

// halDepthStencil builds the pipeline depth-stencil state for an attachment
// of format. A nil desc disables both tests.
func halDepthStencil(format gputypes.TextureFormat, desc *backend.DepthStencilDescriptor) *hal.DepthStencilState {
	s := &hal.DepthStencilState{
		Format:       format,
		DepthCompare: gputypes.CompareFunctionAlways,
		StencilFront: halStencilFace(backend.StencilFace{}),
		StencilBack:  halStencilFace(backend.StencilFace{}),
	}
	if desc == nil {
		return s
	}
	if desc.DepthTestEnabled {
		s.DepthCompare = desc.DepthCompare
		s.DepthWriteEnabled = desc.DepthWriteEnabled
	}
	if desc.StencilEnabled && backend.HasStencil(format) {
		s.StencilFront = halStencilFace(desc.StencilFront)
		s.StencilBack = halStencilFace(desc.StencilBack)
		s.StencilReadMask = desc.StencilReadMask
		s.StencilWriteMask = desc.StencilWriteMask
	}
	return s
}
