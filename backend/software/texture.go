package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// Texture is a CPU texture. Color formats keep tightly packed texels per
// level; depth formats keep float depth and 8-bit stencil planes.
type Texture struct {
	width, height, depth int
	dim                  gputypes.TextureDimension
	format               gputypes.TextureFormat
	usage                backend.TextureUsage
	levels               [][]byte

	depthPlane   []float32
	stencilPlane []uint8

	destroyed bool
}

func newTexture(desc *backend.TextureDescriptor) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("software: texture %q: invalid size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if desc.Width > maxTextureSize || desc.Height > maxTextureSize {
		return nil, fmt.Errorf("software: texture %q: %w", desc.Label, backend.ErrNoDeviceMemory)
	}
	depth := max(desc.Depth, 1)
	mips := max(desc.MipLevels, 1)

	t := &Texture{
		width:  desc.Width,
		height: desc.Height,
		depth:  depth,
		dim:    desc.Dimension,
		format: desc.Format,
		usage:  desc.Usage,
	}

	if backend.IsDepthFormat(desc.Format) {
		n := desc.Width * desc.Height
		t.depthPlane = make([]float32, n)
		t.stencilPlane = make([]uint8, n)
		return t, nil
	}

	if backend.BytesPerPixel(desc.Format) == 0 && !backend.IsCompressed(desc.Format) {
		return nil, fmt.Errorf("software: texture %q: %w", desc.Label, backend.ErrUnsupportedFormat)
	}
	if desc.Usage.Has(backend.TextureUsageRenderTarget) && !renderable(desc.Format) {
		return nil, fmt.Errorf("software: render target %q: %w", desc.Label, backend.ErrUnsupportedFormat)
	}

	t.levels = make([][]byte, mips)
	for l := range mips {
		t.levels[l] = make([]byte, t.levelSize(l))
	}
	return t, nil
}

func (t *Texture) Width() int                     { return t.width }
func (t *Texture) Height() int                    { return t.height }
func (t *Texture) Depth() int                     { return t.depth }
func (t *Texture) Format() gputypes.TextureFormat { return t.format }
func (t *Texture) Usage() backend.TextureUsage    { return t.usage }

// MipLevels returns the number of levels.
func (t *Texture) MipLevels() int {
	if t.levels == nil {
		return 1
	}
	return len(t.levels)
}

// Destroy releases texel storage.
func (t *Texture) Destroy() {
	t.destroyed = true
	t.levels = nil
	t.depthPlane = nil
	t.stencilPlane = nil
}

func (t *Texture) levelDims(level int) (w, h, d int) {
	w = backend.MipSize(t.width, level)
	h = backend.MipSize(t.height, level)
	d = t.depth
	// Array layers keep their count; only volume depth shrinks.
	if t.dim == gputypes.TextureDimension3D {
		d = backend.MipSize(t.depth, level)
	}
	return w, h, d
}

func (t *Texture) rowBytes(level int) int {
	w, _, _ := t.levelDims(level)
	return backend.RowBytes(t.format, w)
}

func (t *Texture) levelSize(level int) int {
	_, h, d := t.levelDims(level)
	return t.rowBytes(level) * backend.RowCount(t.format, h) * d
}

// checkRegion validates region against level and returns byte spans.
func (t *Texture) checkRegion(level int, r backend.Region) (rowOff, rowLen, rows int, err error) {
	if t.destroyed {
		return 0, 0, 0, backend.ErrDestroyed
	}
	if t.levels == nil {
		return 0, 0, 0, fmt.Errorf("software: depth texture transfer: %w", backend.ErrUnsupportedFormat)
	}
	if level < 0 || level >= len(t.levels) {
		return 0, 0, 0, backend.ErrInvalidRegion
	}
	w, h, d := t.levelDims(level)
	depth := max(r.Depth, 1)
	if r.X < 0 || r.Y < 0 || r.Z < 0 || r.Width <= 0 || r.Height <= 0 ||
		r.X+r.Width > w || r.Y+r.Height > h || r.Z+depth > d {
		return 0, 0, 0, backend.ErrInvalidRegion
	}
	if backend.IsCompressed(t.format) {
		if r.X%4 != 0 || r.Y%4 != 0 {
			return 0, 0, 0, backend.ErrInvalidRegion
		}
		return backend.RowBytes(t.format, r.X), backend.RowBytes(t.format, r.Width), backend.RowCount(t.format, r.Height), nil
	}
	bpp := backend.BytesPerPixel(t.format)
	return r.X * bpp, r.Width * bpp, r.Height, nil
}

// Replace uploads data into region of level. Slices of a volume region are
// consecutive in data, each rows*bytesPerRow long.
func (t *Texture) Replace(level int, r backend.Region, data []byte, bytesPerRow int) error {
	rowOff, rowLen, rows, err := t.checkRegion(level, r)
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

	stride := t.rowBytes(level)
	_, h, _ := t.levelDims(level)
	slice := stride * backend.RowCount(t.format, h)
	firstRow := r.Y
	if backend.IsCompressed(t.format) {
		firstRow = r.Y / 4
	}
	dst := t.levels[level]
	for z := range depth {
		for y := range rows {
			src := data[(z*rows+y)*bytesPerRow:]
			off := (r.Z+z)*slice + (firstRow+y)*stride + rowOff
			copy(dst[off:off+rowLen], src[:rowLen])
		}
	}
	return nil
}

// Read downloads region of level into dst.
func (t *Texture) Read(level int, r backend.Region, dst []byte, bytesPerRow int) error {
	rowOff, rowLen, rows, err := t.checkRegion(level, r)
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

	stride := t.rowBytes(level)
	_, h, _ := t.levelDims(level)
	slice := stride * backend.RowCount(t.format, h)
	firstRow := r.Y
	if backend.IsCompressed(t.format) {
		firstRow = r.Y / 4
	}
	src := t.levels[level]
	for z := range depth {
		for y := range rows {
			off := (r.Z+z)*slice + (firstRow+y)*stride + rowOff
			copy(dst[(z*rows+y)*bytesPerRow:], src[off:off+rowLen])
		}
	}
	return nil
}

// texel returns the byte slice of one texel of level 0 slice 0.
func (t *Texture) texel(x, y int) []byte {
	bpp := backend.BytesPerPixel(t.format)
	off := (y*t.width + x) * bpp
	return t.levels[0][off : off+bpp]
}

// load reads a texel of level as RGBA.
func (t *Texture) load(level, x, y int) [4]float32 {
	if t.levels == nil || level >= len(t.levels) || backend.IsCompressed(t.format) {
		return [4]float32{0, 0, 0, 1}
	}
	w, _, _ := t.levelDims(level)
	bpp := backend.BytesPerPixel(t.format)
	off := (y*w + x) * bpp
	return decodeTexel(t.format, t.levels[level][off:off+bpp])
}
