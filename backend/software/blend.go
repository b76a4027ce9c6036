package software

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// blendFactor evaluates f for one channel. src and dst are full RGBA
// colors; ch selects the channel (3 is alpha).
func blendFactor(f gputypes.BlendFactor, src, dst [4]float32, ch int) float32 {
	switch f {
	case gputypes.BlendFactorZero:
		return 0
	case gputypes.BlendFactorOne:
		return 1
	case gputypes.BlendFactorSrc:
		return src[ch]
	case gputypes.BlendFactorOneMinusSrc:
		return 1 - src[ch]
	case gputypes.BlendFactorSrcAlpha:
		return src[3]
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return 1 - src[3]
	case gputypes.BlendFactorDst:
		return dst[ch]
	case gputypes.BlendFactorOneMinusDst:
		return 1 - dst[ch]
	case gputypes.BlendFactorDstAlpha:
		return dst[3]
	case gputypes.BlendFactorOneMinusDstAlpha:
		return 1 - dst[3]
	case gputypes.BlendFactorSrcAlphaSaturated:
		if ch == 3 {
			return 1
		}
		return min(src[3], 1-dst[3])
	}
	return 1
}

func blendOp(op gputypes.BlendOperation, s, d float32) float32 {
	switch op {
	case gputypes.BlendOperationSubtract:
		return s - d
	case gputypes.BlendOperationReverseSubtract:
		return d - s
	case gputypes.BlendOperationMin:
		return min(s, d)
	case gputypes.BlendOperationMax:
		return max(s, d)
	}
	return s + d
}

// blend combines src over dst. A nil state replaces dst.
func blend(b *backend.BlendState, src, dst [4]float32) [4]float32 {
	if b == nil {
		return src
	}
	var out [4]float32
	for ch := range 3 {
		out[ch] = blendChannel(b.Color, src, dst, ch)
	}
	out[3] = blendChannel(b.Alpha, src, dst, 3)
	return out
}

func blendChannel(c backend.BlendComponent, src, dst [4]float32, ch int) float32 {
	// Min and max ignore the factors.
	if c.Operation == gputypes.BlendOperationMin || c.Operation == gputypes.BlendOperationMax {
		return blendOp(c.Operation, src[ch], dst[ch])
	}
	s := src[ch] * blendFactor(c.SrcFactor, src, dst, ch)
	d := dst[ch] * blendFactor(c.DstFactor, src, dst, ch)
	return blendOp(c.Operation, s, d)
}

// applyWriteMask keeps dst channels that are masked out.
func applyWriteMask(mask gputypes.ColorWriteMask, c, dst [4]float32) [4]float32 {
	if mask == gputypes.ColorWriteMaskAll {
		return c
	}
	if mask&gputypes.ColorWriteMaskRed == 0 {
		c[0] = dst[0]
	}
	if mask&gputypes.ColorWriteMaskGreen == 0 {
		c[1] = dst[1]
	}
	if mask&gputypes.ColorWriteMaskBlue == 0 {
		c[2] = dst[2]
	}
	if mask&gputypes.ColorWriteMaskAlpha == 0 {
		c[3] = dst[3]
	}
	return c
}

// compare evaluates a depth or stencil comparison of ref against stored.
func compare(fn gputypes.CompareFunction, ref, stored float32) bool {
	switch fn {
	case gputypes.CompareFunctionNever:
		return false
	case gputypes.CompareFunctionLess:
		return ref < stored
	case gputypes.CompareFunctionEqual:
		return ref == stored
	case gputypes.CompareFunctionLessEqual:
		return ref <= stored
	case gputypes.CompareFunctionGreater:
		return ref > stored
	case gputypes.CompareFunctionNotEqual:
		return ref != stored
	case gputypes.CompareFunctionGreaterEqual:
		return ref >= stored
	}
	return true
}

// stencilApply returns the new stencil value after op.
func stencilApply(op backend.StencilOp, cur, ref uint8) uint8 {
	switch op {
	case backend.StencilZero:
		return 0
	case backend.StencilReplace:
		return ref
	case backend.StencilIncrClamp:
		if cur == 0xff {
			return cur
		}
		return cur + 1
	case backend.StencilDecrClamp:
		if cur == 0 {
			return 0
		}
		return cur - 1
	case backend.StencilInvert:
		return ^cur
	case backend.StencilIncrWrap:
		return cur + 1
	case backend.StencilDecrWrap:
		return cur - 1
	}
	return cur
}
