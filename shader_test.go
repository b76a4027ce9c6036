package gfx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestNewShaderInfoLayout(t *testing.T) {
	info := NewShaderInfo(VertexInputs{UVs: 1},
		ParamInfo{Name: "Alpha", Type: ParamFloat},
		ParamInfo{Name: "Tint", Type: ParamVec4},
		ParamInfo{Name: "ViewProj", Type: ParamMatrix4x4},
		ParamInfo{Name: "Diffuse", Type: ParamTexture},
		ParamInfo{Name: "Offset", Type: ParamVec2},
		ParamInfo{Name: "Normal", Type: ParamVec3},
		ParamInfo{Name: "Weights", Type: ParamFloat, ArrayCount: 3},
		ParamInfo{Name: "Mask", Type: ParamTexture},
		ParamInfo{Name: "Technique", Type: ParamString},
	)

	tests := []struct {
		name   string
		offset int
		unit   int
	}{
		{"Alpha", 0, 0},
		{"Tint", 16, 0},
		{"ViewProj", 32, 0},
		{"Diffuse", 0, 0},
		{"Offset", 96, 0},
		{"Normal", 112, 0},
		{"Weights", 128, 0},
		{"Mask", 0, 1},
		{"Technique", 0, 0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := info.Params[i]
			if p.Name != tt.name {
				t.Fatalf("Params[%d].Name = %q, want %q", i, p.Name, tt.name)
			}
			if p.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.offset)
			}
			if p.TextureUnit != tt.unit {
				t.Errorf("TextureUnit = %d, want %d", p.TextureUnit, tt.unit)
			}
		})
	}
	// Weights ends at 128+12; the block rounds up to 16.
	if info.ConstantSize != 144 {
		t.Errorf("ConstantSize = %d, want 144", info.ConstantSize)
	}
	if info.Inputs.UVs != 1 {
		t.Errorf("Inputs.UVs = %d, want 1", info.Inputs.UVs)
	}
}

func TestNewShaderInfoUnknownType(t *testing.T) {
	info := NewShaderInfo(VertexInputs{},
		ParamInfo{Name: "Bogus", Type: ParamType(200)},
		ParamInfo{Name: "Alpha", Type: ParamFloat},
	)
	if info.Params[1].Offset != 0 {
		t.Errorf("Alpha offset = %d, want 0", info.Params[1].Offset)
	}
	if info.ConstantSize != 16 {
		t.Errorf("ConstantSize = %d, want 16", info.ConstantSize)
	}

	dev, _ := newTestDevice(t)
	_, err := dev.CreateVertexShader(&ShaderDesc{File: "bogus.vs", Info: info})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CreateVertexShader() error = %v, want ErrInvalidArgument", err)
	}
}

func TestParamTypeSize(t *testing.T) {
	tests := []struct {
		typ  ParamType
		size int
		name string
	}{
		{ParamBool, 4, "bool"},
		{ParamInt3, 12, "int3"},
		{ParamVec4, 16, "float4"},
		{ParamMatrix4x4, 64, "float4x4"},
		{ParamTexture, 0, "texture"},
		{ParamType(200), 0, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.Size(); got != tt.size {
			t.Errorf("%v.Size() = %d, want %d", tt.typ, got, tt.size)
		}
		if got := tt.typ.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
	}
}

func TestVertexInputsNumBuffersExpected(t *testing.T) {
	tests := []struct {
		in   VertexInputs
		want int
	}{
		{VertexInputs{}, 1},
		{VertexInputs{Normals: true}, 2},
		{VertexInputs{Normals: true, Colors: true, Tangents: true}, 4},
		{VertexInputs{Normals: true, UVs: 2}, 4},
		{VertexInputs{UVs: MaxUVChannels}, 1 + MaxUVChannels},
	}
	for _, tt := range tests {
		if got := tt.in.NumBuffersExpected(); got != tt.want {
			t.Errorf("%+v.NumBuffersExpected() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func newParamShader(t *testing.T, dev *Device) *Shader {
	t.Helper()
	info := NewShaderInfo(VertexInputs{},
		ParamInfo{Name: "ViewProj", Type: ParamMatrix4x4},
		ParamInfo{Name: "world", Type: ParamMatrix4x4},
		ParamInfo{Name: "Scale", Type: ParamFloat, Default: float32Bytes(2)},
		ParamInfo{Name: "Flags", Type: ParamInt},
		ParamInfo{Name: "Diffuse", Type: ParamTexture},
	)
	vs, err := dev.CreateVertexShader(&ShaderDesc{File: "params.vs", Info: info})
	if err != nil {
		t.Fatalf("CreateVertexShader() error = %v", err)
	}
	return vs
}

func TestShaderParams(t *testing.T) {
	dev, _ := newTestDevice(t)
	vs := newParamShader(t, dev)

	if vs.ViewProjParam() == nil || vs.ViewProjParam().Name() != "ViewProj" {
		t.Error("ViewProj parameter not detected")
	}
	if vs.WorldParam() == nil || vs.WorldParam().Name() != "world" {
		t.Error("world parameter not detected case-insensitively")
	}
	if vs.Param("missing") != nil {
		t.Error("Param(missing) should be nil")
	}
	if len(vs.Params()) != 5 {
		t.Errorf("len(Params()) = %d, want 5", len(vs.Params()))
	}
	if vs.ConstantSize() != 144 {
		t.Errorf("ConstantSize() = %d, want 144", vs.ConstantSize())
	}

	scale := vs.Param("Scale")
	if got := math.Float32frombits(binary.LittleEndian.Uint32(scale.Value())); got != 2 {
		t.Errorf("default Scale = %v, want 2", got)
	}
	mustOK(t, vs.SetFloat(scale, 5))
	if got := math.Float32frombits(binary.LittleEndian.Uint32(scale.Value())); got != 5 {
		t.Errorf("Scale = %v, want 5", got)
	}
	vs.SetDefault(scale)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(scale.Value())); got != 2 {
		t.Errorf("Scale after SetDefault = %v, want 2", got)
	}

	flags := vs.Param("Flags")
	mustOK(t, vs.SetBool(flags, true))
	if got := binary.LittleEndian.Uint32(flags.Value()); got != 1 {
		t.Errorf("Flags = %d, want 1", got)
	}
}

func TestShaderSetParamErrors(t *testing.T) {
	dev, _ := newTestDevice(t)
	vs := newParamShader(t, dev)
	tex := vs.Param("Diffuse")

	tests := []struct {
		name string
		err  error
	}{
		{"nil param", vs.SetFloat(nil, 1)},
		{"too long", vs.SetParam(vs.Param("Scale"), make([]byte, 8))},
		{"texture on float", vs.SetTexture(vs.Param("Scale"), nil)},
		{"sampler on int", vs.SetSampler(vs.Param("Flags"), nil)},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrInvalidArgument) {
			t.Errorf("%s: error = %v, want ErrInvalidArgument", tt.name, tt.err)
		}
	}
	if err := vs.SetFloat(tex, 1); err != nil {
		t.Errorf("value set on texture parameter should be ignored, got %v", err)
	}
}

func TestShaderUploadConstants(t *testing.T) {
	dev, _ := newTestDevice(t)
	vs := newParamShader(t, dev)
	pool := dev.Pool()

	first, err := vs.uploadConstants(pool)
	if err != nil {
		t.Fatalf("uploadConstants() error = %v", err)
	}
	for _, p := range vs.Params() {
		if p.Changed() {
			t.Errorf("%s still changed after upload", p.Name())
		}
	}
	again, _ := vs.uploadConstants(pool)
	if again != first {
		t.Error("unchanged shader acquired a new block within one generation")
	}

	mustOK(t, vs.SetFloat(vs.Param("Scale"), 3))
	changed, _ := vs.uploadConstants(pool)
	if changed == first {
		t.Error("changed parameter reused the previous block")
	}
	if !bytes.Equal(vs.data[128:132], float32Bytes(3)) {
		t.Errorf("constant data at Scale = %v, want %v", vs.data[128:132], float32Bytes(3))
	}

	pool.SubmitGeneration()
	next, _ := vs.uploadConstants(pool)
	if next == changed {
		t.Error("block reused across generations")
	}
}

func TestShaderWithoutConstants(t *testing.T) {
	dev, _ := newTestDevice(t)
	_, ps := newShaders(t, dev, VertexInputs{})
	block, err := ps.uploadConstants(dev.Pool())
	if err != nil || block != nil {
		t.Errorf("uploadConstants() = %v, %v; want nil, nil", block, err)
	}
}

func TestShaderConstantSizeTooSmall(t *testing.T) {
	dev, _ := newTestDevice(t)
	info := &ShaderInfo{
		Params:       []ParamInfo{{Name: "ViewProj", Type: ParamMatrix4x4}},
		ConstantSize: 16,
	}
	_, err := dev.CreateVertexShader(&ShaderDesc{File: "small.vs", Info: info})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}
