package gfx

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// SampleFilter selects minification, magnification and mip filtering.
type SampleFilter uint8

const (
	FilterPoint SampleFilter = iota
	FilterLinear
	FilterAnisotropic
	FilterMinMagPointMipLinear
	FilterMinPointMagLinearMipPoint
	FilterMinPointMagMipLinear
	FilterMinLinearMagMipPoint
	FilterMinLinearMagPointMipLinear
	FilterMinMagLinearMipPoint
)

func (f SampleFilter) modes() (minF, magF, mipF gputypes.FilterMode) {
	const (
		p = gputypes.FilterModeNearest
		l = gputypes.FilterModeLinear
	)
	switch f {
	case FilterLinear, FilterAnisotropic:
		return l, l, l
	case FilterMinMagPointMipLinear:
		return p, p, l
	case FilterMinPointMagLinearMipPoint:
		return p, l, p
	case FilterMinPointMagMipLinear:
		return p, l, l
	case FilterMinLinearMagMipPoint:
		return l, p, p
	case FilterMinLinearMagPointMipLinear:
		return l, p, l
	case FilterMinMagLinearMipPoint:
		return l, l, p
	default:
		return p, p, p
	}
}

// SamplerInfo is the immutable configuration of a sampler.
type SamplerInfo struct {
	Filter        SampleFilter
	AddressU      gputypes.AddressMode
	AddressV      gputypes.AddressMode
	AddressW      gputypes.AddressMode
	MaxAnisotropy int
	// Compare enables comparison sampling when set.
	Compare gputypes.CompareFunction
}

// DefaultSamplerInfo returns linear filtering with clamped addressing.
func DefaultSamplerInfo() SamplerInfo {
	return SamplerInfo{
		Filter:        FilterLinear,
		AddressU:      gputypes.AddressModeClampToEdge,
		AddressV:      gputypes.AddressModeClampToEdge,
		AddressW:      gputypes.AddressModeClampToEdge,
		MaxAnisotropy: 1,
	}
}

func (i SamplerInfo) descriptor(label string) *backend.SamplerDescriptor {
	minF, magF, mipF := i.Filter.modes()
	aniso := uint16(1)
	if i.Filter == FilterAnisotropic && i.MaxAnisotropy > 1 {
		aniso = uint16(min(i.MaxAnisotropy, 16))
	}
	return &backend.SamplerDescriptor{
		Label:         label,
		AddressModeU:  i.AddressU,
		AddressModeV:  i.AddressV,
		AddressModeW:  i.AddressW,
		MagFilter:     magF,
		MinFilter:     minF,
		MipmapFilter:  mipF,
		MaxAnisotropy: aniso,
		Compare:       i.Compare,
	}
}

// Sampler is an immutable sampler state. Release and rebuild recreate the
// native sampler from the stored configuration.
type Sampler struct {
	dev    *Device
	handle Handle
	info   SamplerInfo
	native backend.Sampler

	destroyed bool
}

// Kind implements resource.
func (s *Sampler) Kind() Kind { return KindSampler }

// Info returns the sampler configuration.
func (s *Sampler) Info() SamplerInfo { return s.info }

func (s *Sampler) release() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

func (s *Sampler) rebuild() error {
	if s.native != nil {
		return nil
	}
	n, err := s.dev.backend.NewSampler(s.info.descriptor("gfx sampler"))
	if err != nil {
		return resourceErr(KindSampler, "", err)
	}
	s.native = n
	return nil
}

// Destroy releases the sampler and unregisters it. Destroy is idempotent.
func (s *Sampler) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.dev.unbindSampler(s)
	s.dev.retire(s.release)
	s.dev.registry.remove(s.handle)
}
