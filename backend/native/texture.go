package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

// Texture is a HAL texture with lazily created views.
//
// The sampling view covers every level and layer. The attachment view is
// level 0, layer 0 and is what render passes bind.
type Texture struct {
	dev *Device
	raw hal.Texture

	width, height, depth int
	levels               int
	dim                  gputypes.TextureDimension
	format               gputypes.TextureFormat
	usage                backend.TextureUsage

	sampleOnce sync.Once
	sampleView hal.TextureView
	sampleErr  error

	attachOnce sync.Once
	attachView hal.TextureView
	attachErr  error

	destroyed bool
}

func (d *Device) newTexture(desc *backend.TextureDescriptor) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("native: texture %q: invalid size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if limit := int(d.limits.MaxTextureDimension2D); limit > 0 && (desc.Width > limit || desc.Height > limit) {
		return nil, fmt.Errorf("native: texture %q: %dx%d exceeds %d: %w",
			desc.Label, desc.Width, desc.Height, limit, backend.ErrNoDeviceMemory)
	}
	if backend.BytesPerPixel(desc.Format) == 0 && !backend.IsCompressed(desc.Format) {
		return nil, fmt.Errorf("native: texture %q: %w", desc.Label, backend.ErrUnsupportedFormat)
	}
	if desc.Usage.Has(backend.TextureUsageRenderTarget) && backend.IsCompressed(desc.Format) {
		return nil, fmt.Errorf("native: render target %q: %w", desc.Label, backend.ErrUnsupportedFormat)
	}

	dim := desc.Dimension
	if dim == gputypes.TextureDimensionUndefined {
		dim = gputypes.TextureDimension2D
	}
	t := &Texture{
		dev:    d,
		width:  desc.Width,
		height: desc.Height,
		depth:  max(desc.Depth, 1),
		levels: max(desc.MipLevels, 1),
		dim:    dim,
		format: desc.Format,
		usage:  desc.Usage,
	}
	raw, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: uint32(t.depth),
		},
		MipLevelCount: uint32(t.levels),
		SampleCount:   1,
		Dimension:     dim,
		Format:        desc.Format,
		Usage:         halTextureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("native: texture %q: %w", desc.Label, mapErr(err))
	}
	t.raw = raw
	slogger().Debug("texture created", "label", desc.Label,
		"width", t.width, "height", t.height, "depth", t.depth, "levels", t.levels)
	return t, nil
}

// halTextureUsage converts usage flags. Every texture may be uploaded to
// and read back.
func halTextureUsage(u backend.TextureUsage) gputypes.TextureUsage {
	out := gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
	if u.Has(backend.TextureUsageSampled) {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u.Has(backend.TextureUsageRenderTarget) || u.Has(backend.TextureUsageDepthStencil) {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

func (t *Texture) Width() int                     { return t.width }
func (t *Texture) Height() int                    { return t.height }
func (t *Texture) Depth() int                     { return t.depth }
func (t *Texture) Format() gputypes.TextureFormat { return t.format }
func (t *Texture) MipLevels() int                 { return t.levels }
func (t *Texture) Usage() backend.TextureUsage    { return t.usage }

// viewDimension is the dimension the sampling view exposes to shaders.
func (t *Texture) viewDimension() gputypes.TextureViewDimension {
	switch {
	case t.dim == gputypes.TextureDimension3D:
		return gputypes.TextureViewDimension3D
	case t.depth == 6:
		return gputypes.TextureViewDimensionCube
	case t.depth > 1:
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

// aspect returns the aspect covered by views and copies.
func (t *Texture) aspect() gputypes.TextureAspect {
	if backend.IsDepthFormat(t.format) && !backend.HasStencil(t.format) {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// view returns the sampling view, creating it on first use.
func (t *Texture) view() (hal.TextureView, error) {
	t.sampleOnce.Do(func() {
		t.sampleView, t.sampleErr = t.dev.dev.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
			Label:     "gfx_sample_view",
			Format:    t.format,
			Dimension: t.viewDimension(),
			Aspect:    gputypes.TextureAspectAll,
		})
		if t.sampleErr != nil {
			t.sampleErr = fmt.Errorf("native: sample view: %w", mapErr(t.sampleErr))
		}
	})
	return t.sampleView, t.sampleErr
}

// attachment returns the render attachment view, creating it on first use.
func (t *Texture) attachment() (hal.TextureView, error) {
	t.attachOnce.Do(func() {
		t.attachView, t.attachErr = t.dev.dev.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
			Label:           "gfx_attachment_view",
			Format:          t.format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if t.attachErr != nil {
			t.attachErr = fmt.Errorf("native: attachment view: %w", mapErr(t.attachErr))
		}
	})
	return t.attachView, t.attachErr
}

func (t *Texture) levelDims(level int) (w, h, d int) {
	w = backend.MipSize(t.width, level)
	h = backend.MipSize(t.height, level)
	d = t.depth
	if t.dim == gputypes.TextureDimension3D {
		d = backend.MipSize(t.depth, level)
	}
	return w, h, d
}

// checkRegion validates region against level and returns the packed row
// length and row count of one slice of it.
func (t *Texture) checkRegion(level int, r backend.Region) (rowLen, rows int, err error) {
	if t.destroyed {
		return 0, 0, backend.ErrDestroyed
	}
	if backend.IsDepthFormat(t.format) {
		return 0, 0, fmt.Errorf("native: depth texture transfer: %w", backend.ErrUnsupportedFormat)
	}
	if level < 0 || level >= t.levels {
		return 0, 0, backend.ErrInvalidRegion
	}
	w, h, d := t.levelDims(level)
	depth := max(r.Depth, 1)
	if r.X < 0 || r.Y < 0 || r.Z < 0 || r.Width <= 0 || r.Height <= 0 ||
		r.X+r.Width > w || r.Y+r.Height > h || r.Z+depth > d {
		return 0, 0, backend.ErrInvalidRegion
	}
	if backend.IsCompressed(t.format) && (r.X%4 != 0 || r.Y%4 != 0) {
		return 0, 0, backend.ErrInvalidRegion
	}
	return backend.RowBytes(t.format, r.Width), backend.RowCount(t.format, r.Height), nil
}

func (t *Texture) copyBase(level int, r backend.Region) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  t.raw,
		MipLevel: uint32(level),
		Origin:   hal.Origin3D{X: uint32(r.X), Y: uint32(r.Y), Z: uint32(r.Z)},
		Aspect:   t.aspect(),
	}
}

func regionExtent(r backend.Region) hal.Extent3D {
	return hal.Extent3D{
		Width:              uint32(r.Width),
		Height:             uint32(r.Height),
		DepthOrArrayLayers: uint32(max(r.Depth, 1)),
	}
}

// Replace uploads data into region of level through the queue. Slices of a
// volume region are consecutive in data, each rows*bytesPerRow long.
func (t *Texture) Replace(level int, r backend.Region, data []byte, bytesPerRow int) error {
	rowLen, rows, err := t.checkRegion(level, r)
	if err != nil {
		return err
	}
	if bytesPerRow < rowLen {
		return backend.ErrInvalidRegion
	}
	depth := max(r.Depth, 1)
	if len(data) < (depth*rows-1)*bytesPerRow+rowLen {
		return backend.ErrInvalidRegion
	}
	dst := t.copyBase(level, r)
	size := regionExtent(r)
	err = t.dev.queue.WriteTexture(&dst, data, &hal.ImageDataLayout{
		BytesPerRow:  uint32(bytesPerRow),
		RowsPerImage: uint32(rows),
	}, &size)
	if err != nil {
		return fmt.Errorf("native: texture upload: %w", mapErr(err))
	}
	return nil
}

// restingUsage is the usage a texture is left in between passes.
func (t *Texture) restingUsage() gputypes.TextureUsage {
	if t.usage.Has(backend.TextureUsageRenderTarget) || t.usage.Has(backend.TextureUsageDepthStencil) {
		return gputypes.TextureUsageRenderAttachment
	}
	return gputypes.TextureUsageTextureBinding
}

// Read downloads region of level into dst through a map-read staging
// buffer. Staging rows are padded to copyPitchAlignment.
func (t *Texture) Read(level int, r backend.Region, dst []byte, bytesPerRow int) error {
	rowLen, rows, err := t.checkRegion(level, r)
	if err != nil {
		return err
	}
	if bytesPerRow < rowLen {
		return backend.ErrInvalidRegion
	}
	depth := max(r.Depth, 1)
	if len(dst) < (depth*rows-1)*bytesPerRow+rowLen {
		return backend.ErrInvalidRegion
	}

	pitch := alignUp(uint64(rowLen), copyPitchAlignment)
	size := pitch * uint64(rows) * uint64(depth)
	staging, err := t.dev.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "gfx_texture_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: readback staging: %w", mapErr(err))
	}
	defer t.dev.dev.DestroyBuffer(staging)

	enc, err := t.dev.beginEncoder("gfx_texture_readback")
	if err != nil {
		return err
	}
	rest := t.restingUsage()
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage:   hal.TextureUsageTransition{OldUsage: rest, NewUsage: gputypes.TextureUsageCopySrc},
	}})
	enc.CopyTextureToBuffer(t.raw, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: uint32(rows)},
		TextureBase:  t.copyBase(level, r),
		Size:         regionExtent(r),
	}})
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage:   hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageCopySrc, NewUsage: rest},
	}})
	if err := t.dev.submitWait(enc); err != nil {
		return err
	}

	padded := make([]byte, size)
	if err := t.dev.readMapped(staging, 0, padded); err != nil {
		return err
	}
	for i := range depth * rows {
		src := padded[uint64(i)*pitch:]
		copy(dst[i*bytesPerRow:], src[:rowLen])
	}
	return nil
}

// Destroy releases the views and the HAL texture.
func (t *Texture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	if t.sampleView != nil {
		t.dev.dev.DestroyTextureView(t.sampleView)
	}
	if t.attachView != nil {
		t.dev.dev.DestroyTextureView(t.attachView)
	}
	t.dev.dev.DestroyTexture(t.raw)
	t.raw = nil
}
