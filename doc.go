// Package gfx is a retained-mode graphics device layer over an explicit
// native GPU API.
//
// # Overview
//
// A host renderer sets render state, binds textures, samplers, shaders and
// vertex/index buffers on a [Device] one call at a time, and issues draws.
// gfx translates that into the pipeline objects, command encoders and
// frame-scoped buffers of a [backend.Device].
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gfx"
//		_ "github.com/gogpu/gfx/backend/software"
//	)
//
//	dev, err := gfx.NewDevice(gfx.WithBackendName("software"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	dev.SetRenderTarget(target, nil)
//	dev.LoadVertexShader(vs)
//	dev.LoadPixelShader(ps)
//	dev.LoadVertexBuffer(vb)
//
//	dev.BeginScene()
//	dev.PushClearState(gfx.ClearState{Flags: gfx.ClearColor, Color: [4]float32{0, 0, 0, 1}})
//	dev.Draw(gfx.DrawTriangles, 0, 3)
//	dev.EndScene()
//
// # Architecture
//
// The package is organized into:
//   - Resource registry: every object the device creates, swept on device
//     loss by ReleaseAll and RebuildAll
//   - State cache: blend, raster and depth-stencil state, deriving native
//     pipeline and depth-stencil objects only when dirty
//   - Buffer pool: generation-tagged constant and dynamic buffers, reclaimed
//     when the backend reports a submission complete
//   - Vertex binding: matches shader inputs to the streams of a vertex
//     buffer
//   - Draw pipeline: clear, matrices, state, vertex buffers, textures,
//     constants, then the native draw
//
// # Backends
//
//   - "software": CPU reference rasterizer (backend/software)
//   - "native": gogpu/wgpu HAL with naga-compiled WGSL (backend/native)
//
// # Threading
//
// A Device is not safe for concurrent use. Completion callbacks from the
// backend only touch the buffer pool, which is synchronized.
package gfx

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
