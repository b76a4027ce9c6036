package software

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// Sampler filters texture reads for fragment programs.
type Sampler struct {
	desc backend.SamplerDescriptor
}

// Destroy is a no-op; samplers own no memory.
func (s *Sampler) Destroy() {}

// defaultSampler is used when a texture is bound without a sampler.
var defaultSampler = &Sampler{desc: backend.SamplerDescriptor{
	AddressModeU: gputypes.AddressModeClampToEdge,
	AddressModeV: gputypes.AddressModeClampToEdge,
	MagFilter:    gputypes.FilterModeLinear,
	MinFilter:    gputypes.FilterModeLinear,
}}

func wrap(mode gputypes.AddressMode, i, n int) int {
	switch mode {
	case gputypes.AddressModeRepeat:
		i %= n
		if i < 0 {
			i += n
		}
		return i
	case gputypes.AddressModeMirrorRepeat:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i
	default:
		return min(max(i, 0), n-1)
	}
}

// sample reads level 0 of t at normalized coordinates.
func (s *Sampler) sample(t *Texture, u, v float32) [4]float32 {
	if t == nil || t.destroyed {
		return [4]float32{0, 0, 0, 1}
	}
	w, h := t.width, t.height
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5

	if s.desc.MagFilter != gputypes.FilterModeLinear {
		ix := wrap(s.desc.AddressModeU, int(math.Floor(float64(x+0.5))), w)
		iy := wrap(s.desc.AddressModeV, int(math.Floor(float64(y+0.5))), h)
		return t.load(0, ix, iy)
	}

	x0 := int(math.Floor(float64(x)))
	y0 := int(math.Floor(float64(y)))
	fx := x - float32(x0)
	fy := y - float32(y0)

	ax := wrap(s.desc.AddressModeU, x0, w)
	bx := wrap(s.desc.AddressModeU, x0+1, w)
	ay := wrap(s.desc.AddressModeV, y0, h)
	by := wrap(s.desc.AddressModeV, y0+1, h)

	c00 := t.load(0, ax, ay)
	c10 := t.load(0, bx, ay)
	c01 := t.load(0, ax, by)
	c11 := t.load(0, bx, by)

	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bot := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bot-top)*fy
	}
	return out
}
