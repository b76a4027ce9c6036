package gfx

import (
	"bytes"
	"errors"
	"testing"
)

func solid(w, h int, px []byte) []byte {
	out := make([]byte, 0, w*h*len(px))
	for range w * h {
		out = append(out, px...)
	}
	return out
}

func TestCreateTextureValidation(t *testing.T) {
	dev, _ := newTestDevice(t)
	tests := []struct {
		name string
		desc TextureDesc
	}{
		{"zero size", TextureDesc{Width: 0, Height: 4, Format: FormatRGBA}},
		{"unknown format", TextureDesc{Width: 4, Height: 4}},
		{"compressed target", TextureDesc{Width: 4, Height: 4, Format: FormatDXT1, Flags: TextureRenderTarget}},
		{"non-square cube", TextureDesc{Type: TextureCube, Width: 4, Height: 2, Format: FormatRGBA}},
		{"short level", TextureDesc{Width: 4, Height: 4, Format: FormatRGBA, Data: [][]byte{make([]byte, 10)}}},
		{"too many levels", TextureDesc{Width: 1, Height: 1, Format: FormatRGBA, Data: [][]byte{{0, 0, 0, 0}, {0, 0, 0, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dev.CreateTexture(&tt.desc)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("CreateTexture() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestTextureLevels(t *testing.T) {
	dev, _ := newTestDevice(t)
	tests := []struct {
		name  string
		desc  TextureDesc
		want  int
		depth int
	}{
		{"default one level", TextureDesc{Width: 8, Height: 8, Format: FormatRGBA}, 1, 1},
		{"full chain", TextureDesc{Width: 8, Height: 2, Format: FormatRGBA, Flags: TextureGenMipmaps}, 4, 1},
		{"clamped", TextureDesc{Width: 4, Height: 4, Format: FormatRGBA, Levels: 10}, 3, 1},
		{"cube faces", TextureDesc{Type: TextureCube, Width: 2, Height: 2, Format: FormatRGBA}, 1, 6},
		{"volume", TextureDesc{Type: Texture3D, Width: 2, Height: 2, Depth: 8, Format: FormatR8, Flags: TextureGenMipmaps}, 4, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tex, err := dev.CreateTexture(&tt.desc)
			if err != nil {
				t.Fatalf("CreateTexture() error = %v", err)
			}
			if tex.Levels() != tt.want {
				t.Errorf("Levels() = %d, want %d", tex.Levels(), tt.want)
			}
			if tex.Depth() != tt.depth {
				t.Errorf("Depth() = %d, want %d", tex.Depth(), tt.depth)
			}
		})
	}
}

func TestTextureGenerateMipmaps(t *testing.T) {
	dev, _ := newTestDevice(t)
	red := []byte{255, 0, 0, 255}
	tex, err := dev.CreateTexture(&TextureDesc{
		Width:  4,
		Height: 4,
		Format: FormatRGBA,
		Data:   [][]byte{solid(4, 4, red)},
		Flags:  TextureGenMipmaps,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	for l, want := range []int{4, 2, 1} {
		got := tex.LevelData(l)
		if !bytes.Equal(got, solid(want, want, red)) {
			t.Errorf("level %d = %v, want solid %dx%d red", l, got, want, want)
		}
	}
	if tex.LevelData(3) != nil {
		t.Error("LevelData past the chain should be nil")
	}
}

func TestTextureOwnsData(t *testing.T) {
	dev, _ := newTestDevice(t)
	src := solid(2, 2, []byte{1, 2, 3, 4})
	tex, err := dev.CreateTexture(&TextureDesc{Width: 2, Height: 2, Format: FormatRGBA, Data: [][]byte{src}})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	src[0] = 99
	if tex.LevelData(0)[0] != 1 {
		t.Error("texture shares the caller's slice")
	}
}

func TestTextureSetImage(t *testing.T) {
	dev, _ := newTestDevice(t)
	tex, err := dev.CreateTexture(&TextureDesc{Width: 2, Height: 2, Format: FormatR8, Flags: TextureDynamic})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}
	// Rows are 4 bytes apart in the source; only the first 2 are pixels.
	mustOK(t, tex.SetImage(0, []byte{1, 2, 0xee, 0xee, 3, 4}, 4))
	if got := tex.LevelData(0); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("LevelData(0) = %v, want [1 2 3 4]", got)
	}

	tests := []struct {
		name   string
		level  int
		data   []byte
		stride int
	}{
		{"bad level", 1, []byte{1, 2, 3, 4}, 2},
		{"short stride", 0, []byte{1, 2, 3, 4}, 1},
		{"short data", 0, []byte{1, 2, 3}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tex.SetImage(tt.level, tt.data, tt.stride); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("SetImage() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestTextureSetImageStatic(t *testing.T) {
	dev, _ := newTestDevice(t)
	tex, _ := dev.CreateTexture(&TextureDesc{Width: 1, Height: 1, Format: FormatRGBA})
	var ce *ContractError
	if err := tex.SetImage(0, make([]byte, 4), 4); !errors.As(err, &ce) {
		t.Errorf("SetImage() on static texture error = %v, want *ContractError", err)
	}
	tex.Destroy()
	if err := tex.SetImage(0, make([]byte, 4), 4); !errors.Is(err, ErrReleased) {
		t.Errorf("SetImage() after Destroy error = %v, want ErrReleased", err)
	}
}

func TestTextureSurvivesDeviceLossWithData(t *testing.T) {
	dev, bd := newTestDevice(t)
	px := solid(2, 2, []byte{10, 20, 30, 40})
	tex, err := dev.CreateTexture(&TextureDesc{Width: 2, Height: 2, Format: FormatRGBA, Data: [][]byte{px}})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	bd.Lose()
	dev.ReleaseAll()
	if tex.Native() != nil {
		t.Fatal("Native() not nil after ReleaseAll")
	}
	bd.Restore()
	mustOK(t, dev.RebuildAll())
	if tex.Native() == nil {
		t.Fatal("Native() nil after RebuildAll")
	}

	stage, err := dev.CreateStageSurface(2, 2, FormatRGBA)
	mustOK(t, err)
	mustOK(t, dev.StageTexture(stage, tex))
	got, _, _ := stage.Map()
	if !bytes.Equal(got, px) {
		t.Errorf("contents after rebuild = %v, want %v", got, px)
	}
}

func TestIndexBuffer(t *testing.T) {
	dev, _ := newTestDevice(t)
	if _, err := dev.CreateIndexBuffer("big", Index16, []uint32{0, 70000}, false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("16-bit overflow error = %v, want ErrInvalidArgument", err)
	}

	ib, err := dev.CreateIndexBuffer("dyn", Index32, []uint32{0, 1, 2}, true)
	mustOK(t, err)
	if ib.Count() != 3 || ib.Type() != Index32 {
		t.Errorf("Count() = %d Type() = %v", ib.Count(), ib.Type())
	}
	mustOK(t, ib.Flush([]uint32{0, 1, 2, 2, 1, 3}))
	if ib.Count() != 6 {
		t.Errorf("Count() after Flush = %d, want 6", ib.Count())
	}

	static, err := dev.CreateIndexBuffer("static", Index16, []uint32{0, 1, 2}, false)
	mustOK(t, err)
	if err := static.Flush([]uint32{0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Flush() on static buffer error = %v, want ErrInvalidArgument", err)
	}
}

func TestVertexDataValidation(t *testing.T) {
	tests := []struct {
		name string
		data VertexData
		ok   bool
	}{
		{"positions only", VertexData{Positions: [][3]float32{{0, 0, 0}}}, true},
		{"empty", VertexData{}, false},
		{"normal count", VertexData{Positions: [][3]float32{{}, {}}, Normals: [][3]float32{{}}}, false},
		{"uv width", VertexData{Positions: [][3]float32{{}}, UVs: []UVChannel{{Width: 3, Coords: []float32{0, 0, 0}}}}, false},
		{"uv coords", VertexData{Positions: [][3]float32{{}}, UVs: []UVChannel{{Width: 2, Coords: []float32{0}}}}, false},
		{"uv ok", VertexData{Positions: [][3]float32{{}}, UVs: []UVChannel{{Width: 4, Coords: []float32{0, 0, 0, 1}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.validate()
			if (err == nil) != tt.ok {
				t.Errorf("validate() error = %v, want ok %v", err, tt.ok)
			}
		})
	}
}

func TestStaticVertexBufferRejectsFlush(t *testing.T) {
	dev, _ := newTestDevice(t)
	vb, err := dev.CreateVertexBuffer("static", lowerLeftTriangle(), false)
	mustOK(t, err)
	if err := vb.Flush(lowerLeftTriangle()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Flush() error = %v, want ErrInvalidArgument", err)
	}
}
