package backend

import (
	"github.com/gogpu/gputypes"
)

// Device is an opened native GPU device with one submission queue.
//
// Objects created by a Device are only valid with that Device. Every method
// is called from the submitting goroutine except where noted.
type Device interface {
	// Name describes the adapter the device was opened on.
	Name() string

	// Limits reports device capabilities relevant to the caller.
	Limits() Limits

	NewBuffer(desc *BufferDescriptor) (Buffer, error)
	NewTexture(desc *TextureDescriptor) (Texture, error)
	NewSampler(desc *SamplerDescriptor) (Sampler, error)

	// NewFunction compiles a shader stage. Compilation failures wrap ErrCompile.
	NewFunction(desc *FunctionDescriptor) (Function, error)

	NewRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)
	NewDepthStencilState(desc *DepthStencilDescriptor) (DepthStencilState, error)

	// NewCommandBuffer starts recording a batch of passes.
	NewCommandBuffer() (CommandBuffer, error)

	// Close waits for outstanding work and destroys the device.
	Close() error
}

// Limits reports device capabilities.
type Limits struct {
	MaxTextureSize  int
	MaxTextureUnits int
	MaxVertexSlots  int
	// CanReadBack reports whether texture contents can be read by the CPU.
	CanReadBack bool
}

// Buffer is a linear block of GPU memory.
type Buffer interface {
	Size() uint64
	Storage() StorageMode

	// Write copies data into the buffer. Only shared storage may be written
	// after creation.
	Write(offset uint64, data []byte) error

	// Read copies buffer contents into dst.
	Read(offset uint64, dst []byte) error

	Destroy()
}

// Texture is a native image with one or more mip levels.
type Texture interface {
	Width() int
	Height() int
	Depth() int
	Format() gputypes.TextureFormat
	MipLevels() int
	Usage() TextureUsage

	// Replace uploads pixel data into region of level.
	Replace(level int, region Region, data []byte, bytesPerRow int) error

	// Read downloads region of level into dst.
	Read(level int, region Region, dst []byte, bytesPerRow int) error

	Destroy()
}

// Sampler is an immutable native sampler object.
type Sampler interface {
	Destroy()
}

// Function is a compiled shader stage.
type Function interface {
	Stage() Stage
	Destroy()
}

// RenderPipeline is a linked vertex/fragment pair with fixed-function
// blend configuration and vertex layout.
type RenderPipeline interface {
	Destroy()
}

// DepthStencilState is a precompiled depth test and stencil configuration.
type DepthStencilState interface {
	Destroy()
}

// CommandBuffer records passes for one submission.
type CommandBuffer interface {
	// BeginRenderPass starts a render pass. Only one encoder may be open at
	// a time.
	BeginRenderPass(desc *RenderPassDescriptor) (RenderEncoder, error)

	// BeginBlit starts a copy encoder.
	BeginBlit() (BlitEncoder, error)

	// Commit submits the recorded work. onComplete is invoked exactly once,
	// in submission order, from a goroutine owned by the backend once the
	// GPU is done with the work. It is invoked even when Commit returns an
	// error, with that error. A nil onComplete is allowed.
	Commit(onComplete func(error)) error
}

// RenderEncoder records draw commands inside a render pass.
type RenderEncoder interface {
	SetPipeline(p RenderPipeline)
	SetDepthStencilState(s DepthStencilState)
	SetViewport(v Viewport)
	// SetScissorRect restricts rasterization. A nil rect disables scissoring.
	SetScissorRect(r *Rect)
	SetCullMode(mode gputypes.CullMode)
	SetStencilReference(ref uint32)

	SetVertexBuffer(slot int, b Buffer, offset uint64)
	SetVertexUniforms(b Buffer, offset, size uint64)
	SetFragmentUniforms(b Buffer, offset, size uint64)
	SetFragmentTexture(slot int, t Texture)
	SetFragmentSampler(slot int, s Sampler)

	Draw(topology gputypes.PrimitiveTopology, start, count uint32) error
	DrawIndexed(topology gputypes.PrimitiveTopology, ib Buffer, format gputypes.IndexFormat, start, count uint32) error

	End() error
}

// BlitEncoder records copies between textures.
type BlitEncoder interface {
	CopyTexture(src Texture, srcLevel int, srcOrigin Origin, dst Texture, dstLevel int, dstOrigin Origin, size Extent) error
	End() error
}
