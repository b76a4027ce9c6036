package gfx

// Kind identifies the resource type of a registered object.
type Kind uint8

const (
	KindVertexBuffer Kind = iota
	KindIndexBuffer
	KindZStencil
	KindTexture
	KindStageSurface
	KindSampler
	KindShader
	KindSwapChain
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindVertexBuffer:
		return "VertexBuffer"
	case KindIndexBuffer:
		return "IndexBuffer"
	case KindZStencil:
		return "ZStencilBuffer"
	case KindTexture:
		return "Texture"
	case KindStageSurface:
		return "StageSurface"
	case KindSampler:
		return "SamplerState"
	case KindShader:
		return "Shader"
	case KindSwapChain:
		return "SwapChain"
	default:
		return "Unknown"
	}
}

// DrawMode is the primitive topology of a draw.
type DrawMode uint8

const (
	DrawPoints DrawMode = iota
	DrawLines
	DrawLineStrip
	DrawTriangles
	DrawTriangleStrip
)

// String returns the draw mode name.
func (m DrawMode) String() string {
	switch m {
	case DrawPoints:
		return "points"
	case DrawLines:
		return "lines"
	case DrawLineStrip:
		return "line-strip"
	case DrawTriangles:
		return "triangles"
	case DrawTriangleStrip:
		return "triangle-strip"
	default:
		return "unknown"
	}
}

// ClearFlags selects which attachments a clear state clears.
type ClearFlags uint8

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
	ClearStencil
)

// Has reports whether all flags in f2 are set.
func (f ClearFlags) Has(f2 ClearFlags) bool { return f&f2 == f2 }
