package gfx

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"

	"github.com/gogpu/gfx/backend"
)

// TextureType is the dimensionality of a texture.
type TextureType uint8

const (
	Texture2D TextureType = iota
	Texture3D
	TextureCube
)

// String returns the type name.
func (t TextureType) String() string {
	switch t {
	case Texture3D:
		return "3D"
	case TextureCube:
		return "cube"
	default:
		return "2D"
	}
}

// TextureFlags are creation flags of a texture.
type TextureFlags uint8

const (
	// TextureRenderTarget allows binding the texture as a render target.
	TextureRenderTarget TextureFlags = 1 << iota
	// TextureDynamic allows SetImage after creation.
	TextureDynamic
	// TextureShared marks a texture shared with another device or process.
	TextureShared
	// TextureGenMipmaps generates missing mip levels from level 0.
	TextureGenMipmaps
)

// Has reports whether all flags in f2 are set.
func (f TextureFlags) Has(f2 TextureFlags) bool { return f&f2 == f2 }

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label  string
	Type   TextureType
	Width  int
	Height int
	// Depth is the volume depth of a 3D texture. Ignored otherwise.
	Depth  int
	Format ColorFormat
	// Levels is the mip level count. Zero means one level, or the full
	// chain when TextureGenMipmaps is set.
	Levels int
	// Data holds the tightly packed pixels of each supplied level. Cube
	// faces are consecutive within a level. The texture keeps its own copy.
	Data  [][]byte
	Flags TextureFlags
}

// Texture is a 2D, volume or cube texture. It keeps the pixel data of
// every level so it can be re-uploaded after device loss.
type Texture struct {
	dev    *Device
	handle Handle

	label  string
	typ    TextureType
	width  int
	height int
	depth  int
	format ColorFormat
	levels int
	flags  TextureFlags
	data   [][]byte

	native backend.Texture

	// gpuWritten is set when the GPU has written contents the CPU copy
	// does not have; release then reads them back.
	gpuWritten bool
	// external textures belong to a swap chain and are never registered.
	external  bool
	destroyed bool
}

func mipCount(w, h, d int) int {
	n := 1
	for s := max(w, h, d); s > 1; s >>= 1 {
		n++
	}
	return n
}

func newTexture(dev *Device, desc *TextureDesc) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("gfx: texture %q: %w: size %dx%d", desc.Label, ErrInvalidArgument, desc.Width, desc.Height)
	}
	if desc.Format.Native() == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("gfx: texture %q: %w: format %v", desc.Label, ErrInvalidArgument, desc.Format)
	}
	if desc.Flags.Has(TextureRenderTarget) && !desc.Format.Renderable() {
		return nil, fmt.Errorf("gfx: texture %q: %w: %v is not renderable", desc.Label, ErrInvalidArgument, desc.Format)
	}

	t := &Texture{
		dev:    dev,
		label:  desc.Label,
		typ:    desc.Type,
		width:  desc.Width,
		height: desc.Height,
		depth:  1,
		format: desc.Format,
		flags:  desc.Flags,
	}
	switch desc.Type {
	case Texture3D:
		t.depth = max(desc.Depth, 1)
	case TextureCube:
		if desc.Width != desc.Height {
			return nil, fmt.Errorf("gfx: cube texture %q: %w: faces must be square", desc.Label, ErrInvalidArgument)
		}
		t.depth = 6
	}

	volumeDepth := 1
	if t.typ == Texture3D {
		volumeDepth = t.depth
	}
	full := mipCount(t.width, t.height, volumeDepth)
	t.levels = desc.Levels
	switch {
	case t.levels <= 0 && desc.Flags.Has(TextureGenMipmaps):
		t.levels = full
	case t.levels <= 0:
		t.levels = 1
	case t.levels > full:
		t.levels = full
	}

	if len(desc.Data) > t.levels {
		return nil, fmt.Errorf("gfx: texture %q: %w: %d data levels for %d mip levels",
			desc.Label, ErrInvalidArgument, len(desc.Data), t.levels)
	}
	if len(desc.Data) > 0 {
		t.data = make([][]byte, t.levels)
		for l, level := range desc.Data {
			if level == nil {
				continue
			}
			if want := t.levelSize(l); len(level) < want {
				return nil, fmt.Errorf("gfx: texture %q: %w: level %d has %d bytes, want %d",
					desc.Label, ErrInvalidArgument, l, len(level), want)
			}
			t.data[l] = append([]byte(nil), level[:t.levelSize(l)]...)
		}
		if desc.Flags.Has(TextureGenMipmaps) {
			t.generateMipmaps()
		}
	}
	return t, nil
}

// Kind implements resource.
func (t *Texture) Kind() Kind { return KindTexture }

func (t *Texture) Label() string           { return t.label }
func (t *Texture) Type() TextureType       { return t.typ }
func (t *Texture) Width() int              { return t.width }
func (t *Texture) Height() int             { return t.height }
func (t *Texture) Depth() int              { return t.depth }
func (t *Texture) Format() ColorFormat     { return t.format }
func (t *Texture) Levels() int             { return t.levels }
func (t *Texture) Flags() TextureFlags     { return t.flags }
func (t *Texture) Native() backend.Texture { return t.native }

// IsRenderTarget reports whether the texture can be bound as a target.
func (t *Texture) IsRenderTarget() bool { return t.flags.Has(TextureRenderTarget) }

// Stride returns the byte length of one row of level 0.
func (t *Texture) Stride() int {
	return backend.RowBytes(t.format.Native(), t.width)
}

// levelDims returns the size of level l; depth counts cube faces.
func (t *Texture) levelDims(l int) (w, h, d int) {
	w = backend.MipSize(t.width, l)
	h = backend.MipSize(t.height, l)
	d = t.depth
	if t.typ == Texture3D {
		d = backend.MipSize(t.depth, l)
	}
	return w, h, d
}

func (t *Texture) levelSize(l int) int {
	w, h, d := t.levelDims(l)
	f := t.format.Native()
	return backend.RowBytes(f, w) * backend.RowCount(f, h) * d
}

// LevelData returns the retained pixel data of level l, or nil.
func (t *Texture) LevelData(l int) []byte {
	if l < 0 || l >= len(t.data) {
		return nil
	}
	return t.data[l]
}

// generateMipmaps fills missing levels by downsampling the level above.
func (t *Texture) generateMipmaps() {
	if t.typ != Texture2D || t.format.Compressed() || len(t.data) == 0 || t.data[0] == nil {
		return
	}
	for l := 1; l < t.levels; l++ {
		if t.data[l] != nil {
			continue
		}
		t.data[l] = t.downsample(l)
	}
}

// downsample produces level l from level l-1. 8-bit formats are filtered
// with x/image/draw; wider formats take the nearest texel.
func (t *Texture) downsample(l int) []byte {
	sw, sh, _ := t.levelDims(l - 1)
	dw, dh, _ := t.levelDims(l)
	src := t.data[l-1]
	bpp := t.format.BytesPerPixel()

	var srcImg, dstImg draw.Image
	switch t.format {
	case FormatRGBA, FormatBGRA, FormatBGRX:
		srcImg = &image.RGBA{Pix: src, Stride: sw * 4, Rect: image.Rect(0, 0, sw, sh)}
		dstImg = image.NewRGBA(image.Rect(0, 0, dw, dh))
	case FormatA8, FormatR8:
		srcImg = &image.Gray{Pix: src, Stride: sw, Rect: image.Rect(0, 0, sw, sh)}
		dstImg = image.NewGray(image.Rect(0, 0, dw, dh))
	}
	if srcImg != nil {
		draw.ApproxBiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)
		switch img := dstImg.(type) {
		case *image.RGBA:
			return img.Pix
		case *image.Gray:
			return img.Pix
		}
	}

	out := make([]byte, dw*dh*bpp)
	for y := range dh {
		sy := min(y*2, sh-1)
		for x := range dw {
			sx := min(x*2, sw-1)
			copy(out[(y*dw+x)*bpp:(y*dw+x+1)*bpp], src[(sy*sw+sx)*bpp:])
		}
	}
	return out
}

func (t *Texture) descriptor() *backend.TextureDescriptor {
	usage := backend.TextureUsageSampled | backend.TextureUsageCopyDst | backend.TextureUsageCopySrc
	if t.IsRenderTarget() {
		usage |= backend.TextureUsageRenderTarget
	}
	dim := gputypes.TextureDimension2D
	if t.typ == Texture3D {
		dim = gputypes.TextureDimension3D
	}
	return &backend.TextureDescriptor{
		Label:     t.label,
		Width:     t.width,
		Height:    t.height,
		Depth:     t.depth,
		MipLevels: t.levels,
		Dimension: dim,
		Format:    t.format.Native(),
		Usage:     usage,
		Storage:   backend.StoragePrivate,
	}
}

// createNative allocates the native texture and uploads retained levels.
func (t *Texture) createNative() error {
	n, err := t.dev.backend.NewTexture(t.descriptor())
	if err != nil {
		return resourceErr(KindTexture, t.label, err)
	}
	for l, data := range t.data {
		if data == nil {
			continue
		}
		if err := t.uploadLevel(n, l, data); err != nil {
			n.Destroy()
			return resourceErr(KindTexture, t.label, err)
		}
	}
	t.native = n
	return nil
}

func (t *Texture) uploadLevel(n backend.Texture, l int, data []byte) error {
	w, h, d := t.levelDims(l)
	region := backend.Region{Extent: backend.Extent{Width: w, Height: h, Depth: d}}
	return n.Replace(l, region, data, backend.RowBytes(t.format.Native(), w))
}

// SetImage replaces level l of a dynamic texture. stride is the byte
// length of a source row; rows are repacked tightly.
func (t *Texture) SetImage(l int, data []byte, stride int) error {
	if t.destroyed {
		return contractErr("set image", ErrReleased)
	}
	if !t.flags.Has(TextureDynamic) {
		return contractErr("set image", fmt.Errorf("%w: texture %q is not dynamic", ErrInvalidArgument, t.label))
	}
	if l < 0 || l >= t.levels {
		return contractErr("set image", fmt.Errorf("%w: level %d of %d", ErrInvalidArgument, l, t.levels))
	}
	w, h, d := t.levelDims(l)
	f := t.format.Native()
	row := backend.RowBytes(f, w)
	rows := backend.RowCount(f, h) * d
	if stride < row || len(data) < stride*(rows-1)+row {
		return contractErr("set image", fmt.Errorf("%w: %d bytes with stride %d for %dx%d level",
			ErrInvalidArgument, len(data), stride, w, h))
	}

	packed := make([]byte, row*rows)
	for y := range rows {
		copy(packed[y*row:(y+1)*row], data[y*stride:])
	}
	if t.data == nil {
		t.data = make([][]byte, t.levels)
	}
	t.data[l] = packed

	if t.native == nil {
		return nil
	}
	if err := t.uploadLevel(t.native, l, packed); err != nil {
		return resourceErr(KindTexture, t.label, err)
	}
	return nil
}

// backup reads GPU-written contents into the retained data.
func (t *Texture) backup() {
	if t.native == nil || !t.dev.backend.Limits().CanReadBack || t.format.Compressed() {
		return
	}
	if !t.IsRenderTarget() && !t.gpuWritten {
		return
	}
	if t.data == nil {
		t.data = make([][]byte, t.levels)
	}
	w, h, d := t.levelDims(0)
	buf := make([]byte, t.levelSize(0))
	region := backend.Region{Extent: backend.Extent{Width: w, Height: h, Depth: d}}
	if err := t.native.Read(0, region, buf, backend.RowBytes(t.format.Native(), w)); err != nil {
		t.dev.log.Debug("gfx: texture backup skipped", "label", t.label, "err", err)
		return
	}
	t.data[0] = buf
}

func (t *Texture) release() {
	if t.native == nil {
		return
	}
	t.backup()
	t.discard()
}

// discard destroys the native texture without reading it back.
func (t *Texture) discard() {
	if t.native == nil {
		return
	}
	t.native.Destroy()
	t.native = nil
}

func (t *Texture) rebuild() error {
	if t.native != nil {
		return nil
	}
	return t.createNative()
}

// Destroy releases the texture and unregisters it. Destroy is idempotent.
func (t *Texture) Destroy() {
	if t.destroyed || t.external {
		return
	}
	t.destroyed = true
	t.dev.unbindTexture(t)
	t.dev.retire(func() {
		if t.native != nil {
			t.native.Destroy()
			t.native = nil
		}
	})
	t.dev.registry.remove(t.handle)
}

// wrapDrawable returns an unregistered texture over a swap chain drawable.
func wrapDrawable(dev *Device, n backend.Texture, format ColorFormat) *Texture {
	return &Texture{
		dev:      dev,
		label:    "drawable",
		width:    n.Width(),
		height:   n.Height(),
		depth:    1,
		format:   format,
		levels:   1,
		flags:    TextureRenderTarget,
		native:   n,
		external: true,
	}
}
