package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// StageSurface is a CPU-readable copy target. Device.StageTexture fills
// it from a texture and Map returns the downloaded pixels.
type StageSurface struct {
	dev    *Device
	handle Handle

	width, height int
	format        ColorFormat
	native        backend.Texture
	data          []byte
	valid         bool

	destroyed bool
}

func newStageSurface(dev *Device, width, height int, format ColorFormat) (*StageSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gfx: stage surface: %w: size %dx%d", ErrInvalidArgument, width, height)
	}
	if format.Native() == gputypes.TextureFormatUndefined || format.Compressed() {
		return nil, fmt.Errorf("gfx: stage surface: %w: format %v", ErrInvalidArgument, format)
	}
	return &StageSurface{dev: dev, width: width, height: height, format: format}, nil
}

// Kind implements resource.
func (s *StageSurface) Kind() Kind { return KindStageSurface }

func (s *StageSurface) Width() int { return s.width }

func (s *StageSurface) Height() int { return s.height }

func (s *StageSurface) Format() ColorFormat { return s.format }

// Stride returns the byte length of one row.
func (s *StageSurface) Stride() int { return s.width * s.format.BytesPerPixel() }

// Map returns the downloaded pixels and their stride. ok is false until a
// StageTexture has completed.
func (s *StageSurface) Map() (data []byte, stride int, ok bool) {
	if !s.valid {
		return nil, 0, false
	}
	return s.data, s.Stride(), true
}

func (s *StageSurface) createNative() error {
	n, err := s.dev.backend.NewTexture(&backend.TextureDescriptor{
		Label:     "gfx stage surface",
		Width:     s.width,
		Height:    s.height,
		Depth:     1,
		MipLevels: 1,
		Dimension: gputypes.TextureDimension2D,
		Format:    s.format.Native(),
		Usage:     backend.TextureUsageCopyDst | backend.TextureUsageCopySrc,
		Storage:   backend.StorageShared,
	})
	if err != nil {
		return resourceErr(KindStageSurface, "", err)
	}
	s.native = n
	return nil
}

// download reads the native texture into data.
func (s *StageSurface) download() error {
	buf := make([]byte, s.Stride()*s.height)
	if err := s.native.Read(0, backend.Rect2D(0, 0, s.width, s.height), buf, s.Stride()); err != nil {
		return err
	}
	s.data = buf
	s.valid = true
	return nil
}

func (s *StageSurface) release() {
	if s.native != nil {
		s.native.Destroy()
		s.native = nil
	}
}

func (s *StageSurface) rebuild() error {
	if s.native != nil {
		return nil
	}
	return s.createNative()
}

// Destroy releases the surface and unregisters it. Destroy is idempotent.
func (s *StageSurface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if old := s.native; old != nil {
		s.dev.retire(old.Destroy)
		s.native = nil
	}
	s.dev.registry.remove(s.handle)
}
