// Package native implements the gfx backend interface on top of the
// gogpu/wgpu hardware abstraction layer.
//
// Shader functions are WGSL compiled to SPIR-V with naga, or precompiled
// SPIR-V words passed as FunctionDescriptor.Program. Functions must use the
// following resource layout:
//
//	@group(0) @binding(0) var<uniform> vs: VertexConstants;   // vertex stage
//	@group(0) @binding(1) var<uniform> fs: FragmentConstants; // fragment stage
//	@group(1) @binding(2*i)   var tex_i: texture_2d<f32>;
//	@group(1) @binding(2*i+1) var smp_i: sampler;
//
// Vertex streams are bound one attribute per slot at the locations gfx
// assigns (position 0, normal 1, color 2, tangent 3, uv 4+).
//
// Topology, cull mode and depth-stencil configuration are baked into native
// pipelines, so each RenderPipeline lazily creates one variant per
// combination it is drawn with. Variants are kept in a bounded LRU.
//
// Completion callbacks are delivered in submission order from a goroutine
// that polls the queue's completed submission index.
//
// Importing the package registers the "native" backend, which opens the
// first Vulkan adapter (discrete GPUs preferred). Build with the nogpu tag
// to leave Vulkan out.
package native
