package gfx

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// ColorFormat is a texture color format.
type ColorFormat uint8

const (
	FormatUnknown ColorFormat = iota
	FormatA8
	FormatR8
	FormatRGBA
	FormatBGRX
	FormatBGRA
	FormatR10G10B10A2
	FormatRGBA16
	FormatR16
	FormatRGBA16F
	FormatRGBA32F
	FormatRG16F
	FormatRG32F
	FormatR16F
	FormatR32F
	FormatDXT1
	FormatDXT3
	FormatDXT5
	FormatR8G8
)

var colorFormats = [...]struct {
	name   string
	native gputypes.TextureFormat
}{
	FormatUnknown:     {"unknown", gputypes.TextureFormatUndefined},
	FormatA8:          {"A8", gputypes.TextureFormatR8Unorm},
	FormatR8:          {"R8", gputypes.TextureFormatR8Unorm},
	FormatRGBA:        {"RGBA", gputypes.TextureFormatRGBA8Unorm},
	FormatBGRX:        {"BGRX", gputypes.TextureFormatBGRA8Unorm},
	FormatBGRA:        {"BGRA", gputypes.TextureFormatBGRA8Unorm},
	FormatR10G10B10A2: {"R10G10B10A2", gputypes.TextureFormatRGB10A2Unorm},
	FormatRGBA16:      {"RGBA16", gputypes.TextureFormatRGBA16Unorm},
	FormatR16:         {"R16", gputypes.TextureFormatR16Unorm},
	FormatRGBA16F:     {"RGBA16F", gputypes.TextureFormatRGBA16Float},
	FormatRGBA32F:     {"RGBA32F", gputypes.TextureFormatRGBA32Float},
	FormatRG16F:       {"RG16F", gputypes.TextureFormatRG16Float},
	FormatRG32F:       {"RG32F", gputypes.TextureFormatRG32Float},
	FormatR16F:        {"R16F", gputypes.TextureFormatR16Float},
	FormatR32F:        {"R32F", gputypes.TextureFormatR32Float},
	FormatDXT1:        {"DXT1", gputypes.TextureFormatBC1RGBAUnorm},
	FormatDXT3:        {"DXT3", gputypes.TextureFormatBC2RGBAUnorm},
	FormatDXT5:        {"DXT5", gputypes.TextureFormatBC3RGBAUnorm},
	FormatR8G8:        {"R8G8", gputypes.TextureFormatRG8Unorm},
}

// String returns the format name.
func (f ColorFormat) String() string {
	if int(f) >= len(colorFormats) {
		return "unknown"
	}
	return colorFormats[f].name
}

// Native returns the backend texture format, or TextureFormatUndefined.
func (f ColorFormat) Native() gputypes.TextureFormat {
	if int(f) >= len(colorFormats) {
		return gputypes.TextureFormatUndefined
	}
	return colorFormats[f].native
}

// BytesPerPixel returns the texel size, or 0 for block-compressed formats.
func (f ColorFormat) BytesPerPixel() int {
	return backend.BytesPerPixel(f.Native())
}

// Compressed reports whether f is block compressed.
func (f ColorFormat) Compressed() bool {
	return backend.IsCompressed(f.Native())
}

// Renderable reports whether f can be bound as a render target.
func (f ColorFormat) Renderable() bool {
	return f != FormatUnknown && int(f) < len(colorFormats) && !f.Compressed()
}

// ZStencilFormat is a depth-stencil surface format.
type ZStencilFormat uint8

const (
	ZStencilNone ZStencilFormat = iota
	Z16
	Z24S8
	Z32F
	Z32FS8X24
)

// String returns the format name.
func (f ZStencilFormat) String() string {
	switch f {
	case Z16:
		return "Z16"
	case Z24S8:
		return "Z24S8"
	case Z32F:
		return "Z32F"
	case Z32FS8X24:
		return "Z32FS8X24"
	default:
		return "none"
	}
}

// Native returns the backend texture format, or TextureFormatUndefined.
func (f ZStencilFormat) Native() gputypes.TextureFormat {
	switch f {
	case Z16:
		return gputypes.TextureFormatDepth16Unorm
	case Z24S8:
		return gputypes.TextureFormatDepth24PlusStencil8
	case Z32F:
		return gputypes.TextureFormatDepth32Float
	case Z32FS8X24:
		return gputypes.TextureFormatDepth32FloatStencil8
	default:
		return gputypes.TextureFormatUndefined
	}
}

// HasStencil reports whether the format carries a stencil plane.
func (f ZStencilFormat) HasStencil() bool {
	return f == Z24S8 || f == Z32FS8X24
}
