package backend

import (
	"github.com/gogpu/gputypes"
)

// StorageMode selects where buffer or texture memory lives.
type StorageMode uint8

const (
	// StorageShared is CPU-writable memory visible to the GPU.
	StorageShared StorageMode = iota
	// StoragePrivate is GPU-only memory populated once at creation.
	StoragePrivate
)

// String returns the storage mode name.
func (m StorageMode) String() string {
	switch m {
	case StorageShared:
		return "shared"
	case StoragePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Stage identifies a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
)

// String returns the stage name.
func (s Stage) String() string {
	if s == StageVertex {
		return "vertex"
	}
	return "fragment"
}

// TextureUsage is a set of texture usage flags.
type TextureUsage uint8

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageRenderTarget
	TextureUsageDepthStencil
	TextureUsageCopySrc
	TextureUsageCopyDst
)

// Has reports whether all flags in u2 are set.
func (u TextureUsage) Has(u2 TextureUsage) bool { return u&u2 == u2 }

// StencilOp is the action applied to a stencil value.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrClamp
	StencilDecrClamp
	StencilInvert
	StencilIncrWrap
	StencilDecrWrap
)

// Origin is a texel position.
type Origin struct {
	X, Y, Z int
}

// Extent is a texel region size.
type Extent struct {
	Width, Height, Depth int
}

// Region is an origin plus extent.
type Region struct {
	Origin
	Extent
}

// Rect2D returns a single-slice region.
func Rect2D(x, y, w, h int) Region {
	return Region{Origin: Origin{X: x, Y: y}, Extent: Extent{Width: w, Height: h, Depth: 1}}
}

// Rect is an integer rectangle in pixels.
type Rect struct {
	X, Y, Width, Height int
}

// Viewport maps normalized device coordinates to pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label   string
	Size    uint64
	Usage   gputypes.BufferUsage
	Storage StorageMode
	// Contents initializes the buffer. Required for private storage.
	Contents []byte
}

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label     string
	Width     int
	Height    int
	Depth     int
	MipLevels int
	Dimension gputypes.TextureDimension
	Format    gputypes.TextureFormat
	Usage     TextureUsage
	Storage   StorageMode
}

// SamplerDescriptor describes a sampler to create.
type SamplerDescriptor struct {
	Label         string
	AddressModeU  gputypes.AddressMode
	AddressModeV  gputypes.AddressMode
	AddressModeW  gputypes.AddressMode
	MagFilter     gputypes.FilterMode
	MinFilter     gputypes.FilterMode
	MipmapFilter  gputypes.FilterMode
	MaxAnisotropy uint16
	// Compare enables comparison sampling when not CompareFunctionUndefined.
	Compare gputypes.CompareFunction
}

// FunctionDescriptor describes a shader stage to compile.
type FunctionDescriptor struct {
	Label      string
	Stage      Stage
	Source     string
	EntryPoint string
	// TextureSlots is the number of texture/sampler pairs the stage reads.
	TextureSlots int
	// Program is a backend-specific precompiled form. The software backend
	// accepts its own kernel types here.
	Program any
}

// VertexBufferLayout describes one vertex stream bound at a slot.
type VertexBufferLayout struct {
	Stride   uint64
	Format   gputypes.VertexFormat
	Location uint32
}

// BlendComponent describes a blend equation for color or alpha.
type BlendComponent struct {
	SrcFactor gputypes.BlendFactor
	DstFactor gputypes.BlendFactor
	Operation gputypes.BlendOperation
}

// BlendState is the fixed-function blend configuration.
type BlendState struct {
	Color BlendComponent
	Alpha BlendComponent
}

// RenderPipelineDescriptor describes a render pipeline to link.
type RenderPipelineDescriptor struct {
	Label    string
	Vertex   Function
	Fragment Function
	Buffers  []VertexBufferLayout

	ColorFormat        gputypes.TextureFormat
	DepthStencilFormat gputypes.TextureFormat

	// Blend is nil when blending is disabled.
	Blend     *BlendState
	WriteMask gputypes.ColorWriteMask
}

// StencilFace is the stencil configuration for one winding.
type StencilFace struct {
	Compare     gputypes.CompareFunction
	FailOp      StencilOp
	DepthFailOp StencilOp
	PassOp      StencilOp
}

// DepthStencilDescriptor describes a depth-stencil state object.
type DepthStencilDescriptor struct {
	Label             string
	DepthTestEnabled  bool
	DepthWriteEnabled bool
	DepthCompare      gputypes.CompareFunction
	StencilEnabled    bool
	StencilFront      StencilFace
	StencilBack       StencilFace
	StencilReadMask   uint32
	StencilWriteMask  uint32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label      string
	Color      Texture
	ColorLoad  gputypes.LoadOp
	ClearColor gputypes.Color

	// DepthStencil is optional.
	DepthStencil Texture
	DepthLoad    gputypes.LoadOp
	ClearDepth   float32
	StencilLoad  gputypes.LoadOp
	ClearStencil uint32
}

// Shader locations of the vertex streams gfx binds. Position is always
// bound; the other streams are bound when the vertex shader consumes them.
const (
	LocationPosition = 0
	LocationNormal   = 1
	LocationColor    = 2
	LocationTangent  = 3
	// LocationUV0 is the first UV channel; channel i is at LocationUV0+i.
	LocationUV0 = 4
)
