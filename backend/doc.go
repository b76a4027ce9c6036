// Package backend defines the explicit native GPU interface that gfx
// translates its retained-mode calls into.
//
// A backend opens a [Device]. The device creates buffers, textures,
// samplers, compiled shader functions, render pipelines and depth-stencil
// state objects, and records work into command buffers that are committed
// with an asynchronous completion callback.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import _ "github.com/gogpu/gfx/backend/software"
//
// # Backend Selection
//
// Use OpenDefault() to open the best available backend, or Open() to
// request a specific backend by name:
//
//	dev, err := backend.OpenDefault(backend.Config{AdapterIndex: -1})
//
//	dev, err := backend.Open("software", backend.Config{})
//
// # Available Backends
//
//   - "software": CPU reference rasterizer (backend/software)
//   - "native": gogpu/wgpu HAL (backend/native)
package backend
