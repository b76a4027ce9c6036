package software

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// renderable reports whether the rasterizer can read and write texels of f.
func renderable(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatR16Unorm, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG16Float, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA32Float:
		return true
	}
	return false
}

func unorm8(v byte) float32 { return float32(v) / 255 }

func toUnorm8(v float32) byte {
	return byte(clamp01(v)*255 + 0.5)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// decodeTexel converts one texel of f to RGBA. Missing channels read as
// 0 for color and 1 for alpha.
func decodeTexel(f gputypes.TextureFormat, p []byte) [4]float32 {
	le := binary.LittleEndian
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return [4]float32{unorm8(p[0]), 0, 0, 1}
	case gputypes.TextureFormatRG8Unorm:
		return [4]float32{unorm8(p[0]), unorm8(p[1]), 0, 1}
	case gputypes.TextureFormatRGBA8Unorm:
		return [4]float32{unorm8(p[0]), unorm8(p[1]), unorm8(p[2]), unorm8(p[3])}
	case gputypes.TextureFormatBGRA8Unorm:
		return [4]float32{unorm8(p[2]), unorm8(p[1]), unorm8(p[0]), unorm8(p[3])}
	case gputypes.TextureFormatRGB10A2Unorm:
		v := le.Uint32(p)
		return [4]float32{
			float32(v&0x3ff) / 1023,
			float32(v>>10&0x3ff) / 1023,
			float32(v>>20&0x3ff) / 1023,
			float32(v>>30) / 3,
		}
	case gputypes.TextureFormatR16Unorm:
		return [4]float32{float32(le.Uint16(p)) / 65535, 0, 0, 1}
	case gputypes.TextureFormatRGBA16Unorm:
		var c [4]float32
		for i := range c {
			c[i] = float32(le.Uint16(p[i*2:])) / 65535
		}
		return c
	case gputypes.TextureFormatR16Float:
		return [4]float32{halfToFloat(le.Uint16(p)), 0, 0, 1}
	case gputypes.TextureFormatRG16Float:
		return [4]float32{halfToFloat(le.Uint16(p)), halfToFloat(le.Uint16(p[2:])), 0, 1}
	case gputypes.TextureFormatRGBA16Float:
		var c [4]float32
		for i := range c {
			c[i] = halfToFloat(le.Uint16(p[i*2:]))
		}
		return c
	case gputypes.TextureFormatR32Float:
		return [4]float32{math.Float32frombits(le.Uint32(p)), 0, 0, 1}
	case gputypes.TextureFormatRG32Float:
		return [4]float32{math.Float32frombits(le.Uint32(p)), math.Float32frombits(le.Uint32(p[4:])), 0, 1}
	case gputypes.TextureFormatRGBA32Float:
		var c [4]float32
		for i := range c {
			c[i] = math.Float32frombits(le.Uint32(p[i*4:]))
		}
		return c
	}
	return [4]float32{0, 0, 0, 1}
}

// encodeTexel stores RGBA into one texel of f.
func encodeTexel(f gputypes.TextureFormat, c [4]float32, p []byte) {
	le := binary.LittleEndian
	switch f {
	case gputypes.TextureFormatR8Unorm:
		p[0] = toUnorm8(c[0])
	case gputypes.TextureFormatRG8Unorm:
		p[0], p[1] = toUnorm8(c[0]), toUnorm8(c[1])
	case gputypes.TextureFormatRGBA8Unorm:
		p[0], p[1], p[2], p[3] = toUnorm8(c[0]), toUnorm8(c[1]), toUnorm8(c[2]), toUnorm8(c[3])
	case gputypes.TextureFormatBGRA8Unorm:
		p[0], p[1], p[2], p[3] = toUnorm8(c[2]), toUnorm8(c[1]), toUnorm8(c[0]), toUnorm8(c[3])
	case gputypes.TextureFormatRGB10A2Unorm:
		v := uint32(clamp01(c[0])*1023+0.5) |
			uint32(clamp01(c[1])*1023+0.5)<<10 |
			uint32(clamp01(c[2])*1023+0.5)<<20 |
			uint32(clamp01(c[3])*3+0.5)<<30
		le.PutUint32(p, v)
	case gputypes.TextureFormatR16Unorm:
		le.PutUint16(p, uint16(clamp01(c[0])*65535+0.5))
	case gputypes.TextureFormatRGBA16Unorm:
		for i := range c {
			le.PutUint16(p[i*2:], uint16(clamp01(c[i])*65535+0.5))
		}
	case gputypes.TextureFormatR16Float:
		le.PutUint16(p, floatToHalf(c[0]))
	case gputypes.TextureFormatRG16Float:
		le.PutUint16(p, floatToHalf(c[0]))
		le.PutUint16(p[2:], floatToHalf(c[1]))
	case gputypes.TextureFormatRGBA16Float:
		for i := range c {
			le.PutUint16(p[i*2:], floatToHalf(c[i]))
		}
	case gputypes.TextureFormatR32Float:
		le.PutUint32(p, math.Float32bits(c[0]))
	case gputypes.TextureFormatRG32Float:
		le.PutUint32(p, math.Float32bits(c[0]))
		le.PutUint32(p[4:], math.Float32bits(c[1]))
	case gputypes.TextureFormatRGBA32Float:
		for i := range c {
			le.PutUint32(p[i*4:], math.Float32bits(c[i]))
		}
	}
}

// halfToFloat converts an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: normalize.
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x3ff
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp+112)<<23 | mant<<13)
}

// floatToHalf converts to binary16 with round-to-nearest, flushing values
// below the half subnormal range to zero.
func floatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case bits>>23&0xff == 0xff:
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		return sign | uint16((mant+(1<<(shift-1)))>>shift)
	}
	// The rounding carry may overflow into the exponent, which is correct.
	return sign | uint16((uint32(exp)<<10|mant>>13)+(mant>>12&1))
}
