package gfx

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// ZStencil is a depth-stencil surface. Its contents do not survive
// device loss.
type ZStencil struct {
	dev    *Device
	handle Handle

	width, height int
	format        ZStencilFormat
	native        backend.Texture

	destroyed bool
}

func newZStencil(dev *Device, width, height int, format ZStencilFormat) (*ZStencil, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gfx: zstencil: %w: size %dx%d", ErrInvalidArgument, width, height)
	}
	if format.Native() == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("gfx: zstencil: %w: format %v", ErrInvalidArgument, format)
	}
	return &ZStencil{dev: dev, width: width, height: height, format: format}, nil
}

// Kind implements resource.
func (z *ZStencil) Kind() Kind { return KindZStencil }

func (z *ZStencil) Width() int             { return z.width }
func (z *ZStencil) Height() int            { return z.height }
func (z *ZStencil) Format() ZStencilFormat { return z.format }

// Native returns the native texture, or nil after release.
func (z *ZStencil) Native() backend.Texture { return z.native }

func (z *ZStencil) createNative() error {
	n, err := z.dev.backend.NewTexture(&backend.TextureDescriptor{
		Label:     "gfx zstencil " + z.format.String(),
		Width:     z.width,
		Height:    z.height,
		Depth:     1,
		MipLevels: 1,
		Dimension: gputypes.TextureDimension2D,
		Format:    z.format.Native(),
		Usage:     backend.TextureUsageDepthStencil,
		Storage:   backend.StoragePrivate,
	})
	if err != nil {
		return resourceErr(KindZStencil, z.format.String(), err)
	}
	z.native = n
	return nil
}

func (z *ZStencil) release() {
	if z.native != nil {
		z.native.Destroy()
		z.native = nil
	}
}

func (z *ZStencil) rebuild() error {
	if z.native != nil {
		return nil
	}
	return z.createNative()
}

// Destroy releases the surface and unregisters it. Destroy is idempotent.
func (z *ZStencil) Destroy() {
	if z.destroyed {
		return
	}
	z.destroyed = true
	z.dev.unbindZStencil(z)
	if old := z.native; old != nil {
		z.dev.retire(old.Destroy)
		z.native = nil
	}
	z.dev.registry.remove(z.handle)
}
