package backend

import "github.com/gogpu/gputypes"

// BytesPerPixel returns the size of one texel of f, or 0 for block
// compressed and unknown formats.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Unorm,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGB10A2Unorm, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return 4
	case gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatRG32Float, gputypes.TextureFormatDepth32FloatStencil8:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsCompressed reports whether f is a 4x4 block compressed format.
func IsCompressed(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC2RGBAUnorm,
		gputypes.TextureFormatBC3RGBAUnorm:
		return true
	}
	return false
}

// BlockBytes returns the byte size of one 4x4 block of a compressed format.
func BlockBytes(f gputypes.TextureFormat) int {
	if f == gputypes.TextureFormatBC1RGBAUnorm {
		return 8
	}
	if IsCompressed(f) {
		return 16
	}
	return 0
}

// IsDepthFormat reports whether f carries depth or stencil.
func IsDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

// HasStencil reports whether a depth format has a stencil aspect.
func HasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8 ||
		f == gputypes.TextureFormatDepth32FloatStencil8
}

// RowBytes returns the tightly packed row size of width texels of f.
func RowBytes(f gputypes.TextureFormat, width int) int {
	if IsCompressed(f) {
		return ((width + 3) / 4) * BlockBytes(f)
	}
	return width * BytesPerPixel(f)
}

// RowCount returns the number of data rows for height texels of f.
func RowCount(f gputypes.TextureFormat, height int) int {
	if IsCompressed(f) {
		return (height + 3) / 4
	}
	return height
}

// MipSize returns the size of level given the base size.
func MipSize(base, level int) int {
	s := base >> level
	if s < 1 {
		return 1
	}
	return s
}
