package gfx

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gfx/backend"
)

// ShaderKind is the stage a shader runs in.
type ShaderKind uint8

const (
	ShaderVertex ShaderKind = iota
	ShaderPixel
)

// String returns the stage name.
func (k ShaderKind) String() string {
	if k == ShaderVertex {
		return "vertex"
	}
	return "pixel"
}

// ParamType is the declared type of a shader parameter.
type ParamType uint8

const (
	ParamUnknown ParamType = iota
	ParamBool
	ParamInt
	ParamInt2
	ParamInt3
	ParamInt4
	ParamFloat
	ParamVec2
	ParamVec3
	ParamVec4
	ParamMatrix4x4
	ParamTexture
	ParamString
)

var paramTypes = [...]struct {
	name        string
	size, align int
}{
	ParamUnknown:   {"unknown", 0, 1},
	ParamBool:      {"bool", 4, 4},
	ParamInt:       {"int", 4, 4},
	ParamInt2:      {"int2", 8, 8},
	ParamInt3:      {"int3", 12, 16},
	ParamInt4:      {"int4", 16, 16},
	ParamFloat:     {"float", 4, 4},
	ParamVec2:      {"float2", 8, 8},
	ParamVec3:      {"float3", 12, 16},
	ParamVec4:      {"float4", 16, 16},
	ParamMatrix4x4: {"float4x4", 64, 16},
	ParamTexture:   {"texture", 0, 1},
	ParamString:    {"string", 0, 1},
}

// String returns the type name.
func (t ParamType) String() string {
	if int(t) >= len(paramTypes) {
		return "unknown"
	}
	return paramTypes[t].name
}

// Size returns the byte size of one element in a constant block. Textures
// and strings occupy no constant storage.
func (t ParamType) Size() int {
	if int(t) >= len(paramTypes) {
		return 0
	}
	return paramTypes[t].size
}

// ParamInfo is the reflected description of one shader parameter.
type ParamInfo struct {
	Name       string
	Type       ParamType
	ArrayCount int
	// Offset is the byte offset in the constant block.
	Offset int
	// Default is the initial value. Missing bytes are zero.
	Default []byte
	// TextureUnit is the unit a texture parameter samples from.
	TextureUnit int
}

func (p *ParamInfo) size() int {
	return p.Type.Size() * max(p.ArrayCount, 1)
}

// VertexInputs is the set of optional vertex streams a vertex shader reads.
type VertexInputs struct {
	Normals  bool
	Colors   bool
	Tangents bool
	UVs      int
}

// NumBuffersExpected returns the number of vertex streams a draw binds
// for a shader with these inputs.
func (in VertexInputs) NumBuffersExpected() int {
	n := 1 + in.UVs
	if in.Normals {
		n++
	}
	if in.Colors {
		n++
	}
	if in.Tangents {
		n++
	}
	return n
}

// ShaderSampler is a sampler a pixel shader declares for a texture unit.
type ShaderSampler struct {
	Name string
	Unit int
	Info SamplerInfo
}

// ShaderInfo is the reflection of a shader.
type ShaderInfo struct {
	Params []ParamInfo
	// Inputs is meaningful for vertex shaders only.
	Inputs VertexInputs
	// Samplers is meaningful for pixel shaders only.
	Samplers []ShaderSampler
	// ConstantSize is the constant block size. Zero derives it from Params.
	ConstantSize int
}

// NewShaderInfo lays out params in declaration order using uniform-buffer
// alignment rules and returns the resulting reflection. Texture units are
// assigned in order to texture parameters.
func NewShaderInfo(inputs VertexInputs, params ...ParamInfo) *ShaderInfo {
	info := &ShaderInfo{Inputs: inputs, Params: make([]ParamInfo, len(params))}
	off, unit := 0, 0
	for i, p := range params {
		switch {
		case p.Type == ParamTexture:
			p.TextureUnit = unit
			unit++
		case p.Type.Size() == 0:
		default:
			align := paramTypes[p.Type].align
			if p.ArrayCount > 1 {
				align = 16
			}
			off = (off + align - 1) / align * align
			p.Offset = off
			off += p.size()
		}
		info.Params[i] = p
	}
	info.ConstantSize = (off + 15) / 16 * 16
	return info
}

// Reflector derives a ShaderInfo from shader source.
type Reflector interface {
	Reflect(kind ShaderKind, source string) (*ShaderInfo, error)
}

// ShaderDesc describes a shader to create.
type ShaderDesc struct {
	// File is the originating file name, used in diagnostics.
	File   string
	Source string
	// EntryPoint defaults to "main".
	EntryPoint string
	// Info is the reflection. When nil the device Reflector is used, and
	// without one the shader has no parameters.
	Info *ShaderInfo
	// Program is a backend-specific precompiled form.
	Program any
}

// ShaderParam is one parameter of a shader with its current value.
type ShaderParam struct {
	name        string
	typ         ParamType
	arrayCount  int
	offset      int
	value, def  []byte
	changed     bool
	textureUnit int
	texture     *Texture
	sampler     *Sampler
}

// Name returns the parameter name.
func (p *ShaderParam) Name() string { return p.name }

// Type returns the declared type.
func (p *ShaderParam) Type() ParamType { return p.typ }

// Offset returns the byte offset in the constant block.
func (p *ShaderParam) Offset() int { return p.offset }

// Changed reports whether the value awaits upload.
func (p *ShaderParam) Changed() bool { return p.changed }

// Value returns the current value bytes.
func (p *ShaderParam) Value() []byte { return p.value }

// PixelSamplers is the pixel-shader payload: declared samplers and the
// sampler objects created for them.
type PixelSamplers struct {
	Declared []ShaderSampler
	states   []*Sampler
}

// Shader is a compiled vertex or pixel shader with its parameters.
//
// Exactly one of the kind payloads is set: vertex shaders carry
// VertexInputs, pixel shaders carry PixelSamplers.
type Shader struct {
	dev    *Device
	handle Handle

	kind    ShaderKind
	file    string
	source  string
	entry   string
	program any

	fn        backend.Function
	params    []*ShaderParam
	constSize int
	data      []byte

	vertex *VertexInputs
	pixel  *PixelSamplers

	viewProj *ShaderParam
	world    *ShaderParam

	block      *PooledBuffer
	blockFrame uint64

	destroyed bool
}

func newShader(dev *Device, kind ShaderKind, desc *ShaderDesc, info *ShaderInfo) (*Shader, error) {
	s := &Shader{
		dev:     dev,
		kind:    kind,
		file:    desc.File,
		source:  desc.Source,
		entry:   desc.EntryPoint,
		program: desc.Program,
	}
	if s.entry == "" {
		s.entry = "main"
	}

	size := info.ConstantSize
	for i := range info.Params {
		pi := &info.Params[i]
		if pi.Name == "" {
			return nil, fmt.Errorf("gfx: shader %s: parameter %d: %w: empty name", desc.File, i, ErrInvalidArgument)
		}
		if int(pi.Type) >= len(paramTypes) {
			return nil, fmt.Errorf("gfx: shader %s: parameter %s: %w: type %d", desc.File, pi.Name, ErrInvalidArgument, pi.Type)
		}
		p := &ShaderParam{
			name:        pi.Name,
			typ:         pi.Type,
			arrayCount:  max(pi.ArrayCount, 1),
			offset:      pi.Offset,
			textureUnit: pi.TextureUnit,
			changed:     true,
		}
		if n := pi.size(); n > 0 {
			p.def = make([]byte, n)
			copy(p.def, pi.Default)
			p.value = append([]byte(nil), p.def...)
			size = max(size, pi.Offset+n)
		}
		s.params = append(s.params, p)

		switch {
		case strings.EqualFold(p.name, "ViewProj") && p.typ == ParamMatrix4x4:
			s.viewProj = p
		case strings.EqualFold(p.name, "World") && p.typ == ParamMatrix4x4:
			s.world = p
		}
	}
	if size > info.ConstantSize && info.ConstantSize != 0 {
		return nil, fmt.Errorf("gfx: shader %s: %w: parameters need %d bytes, constant block is %d",
			desc.File, ErrInvalidArgument, size, info.ConstantSize)
	}
	s.constSize = size
	s.data = make([]byte, size)

	if kind == ShaderVertex {
		in := info.Inputs
		if in.UVs < 0 || in.UVs > MaxUVChannels {
			return nil, fmt.Errorf("gfx: shader %s: %w: %d UV channels", desc.File, ErrInvalidArgument, in.UVs)
		}
		s.vertex = &in
	} else {
		s.pixel = &PixelSamplers{Declared: append([]ShaderSampler(nil), info.Samplers...)}
	}
	return s, nil
}

// Kind implements resource.
func (s *Shader) Kind() Kind { return KindShader }

// Stage returns whether s is a vertex or pixel shader.
func (s *Shader) Stage() ShaderKind { return s.kind }

// File returns the originating file name.
func (s *Shader) File() string { return s.file }

// ConstantSize returns the constant block size in bytes.
func (s *Shader) ConstantSize() int { return s.constSize }

// Inputs returns the vertex streams a vertex shader reads.
func (s *Shader) Inputs() VertexInputs {
	if s.vertex == nil {
		return VertexInputs{}
	}
	return *s.vertex
}

// Samplers returns the declared samplers of a pixel shader.
func (s *Shader) Samplers() []ShaderSampler {
	if s.pixel == nil {
		return nil
	}
	return s.pixel.Declared
}

// Params returns the parameters in declaration order.
func (s *Shader) Params() []*ShaderParam { return s.params }

// Param returns the named parameter, or nil.
func (s *Shader) Param(name string) *ShaderParam {
	for _, p := range s.params {
		if p.name == name {
			return p
		}
	}
	return nil
}

// ViewProjParam returns the combined transform parameter, or nil.
func (s *Shader) ViewProjParam() *ShaderParam { return s.viewProj }

// WorldParam returns the world transform parameter, or nil.
func (s *Shader) WorldParam() *ShaderParam { return s.world }

func (s *Shader) native() backend.Function {
	if s == nil {
		return nil
	}
	return s.fn
}

// SetParam sets the raw value of p. data must not be longer than the
// parameter; a shorter value leaves the remaining bytes unchanged.
func (s *Shader) SetParam(p *ShaderParam, data []byte) error {
	if p == nil {
		return fmt.Errorf("gfx: set param: %w: nil parameter", ErrInvalidArgument)
	}
	if p.typ == ParamString || p.typ == ParamTexture {
		return nil
	}
	if len(data) > len(p.value) {
		return fmt.Errorf("gfx: set param %s: %w: %d bytes for %s[%d]",
			p.name, ErrInvalidArgument, len(data), p.typ, p.arrayCount)
	}
	copy(p.value, data)
	p.changed = true
	return nil
}

// SetDefault restores the default value of p.
func (s *Shader) SetDefault(p *ShaderParam) {
	if p == nil {
		return
	}
	copy(p.value, p.def)
	p.texture = nil
	p.sampler = nil
	p.changed = true
}

// SetBool sets a bool parameter.
func (s *Shader) SetBool(p *ShaderParam, v bool) error {
	var n int32
	if v {
		n = 1
	}
	return s.SetInt(p, n)
}

// SetInt sets an int parameter.
func (s *Shader) SetInt(p *ShaderParam, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return s.SetParam(p, b[:])
}

// SetFloat sets a float parameter.
func (s *Shader) SetFloat(p *ShaderParam, v float32) error {
	return s.SetParam(p, float32Bytes(v))
}

// SetVec2 sets a float2 parameter.
func (s *Shader) SetVec2(p *ShaderParam, x, y float32) error {
	return s.SetParam(p, float32Bytes(x, y))
}

// SetVec4 sets a float4 parameter.
func (s *Shader) SetVec4(p *ShaderParam, x, y, z, w float32) error {
	return s.SetParam(p, float32Bytes(x, y, z, w))
}

// SetMatrix4 sets a float4x4 parameter.
func (s *Shader) SetMatrix4(p *ShaderParam, m Matrix4) error {
	return s.SetParam(p, m.Bytes())
}

// SetTexture binds tex to a texture parameter. The draw uses it for the
// parameter's unit when the device slot is empty.
func (s *Shader) SetTexture(p *ShaderParam, tex *Texture) error {
	if p == nil || p.typ != ParamTexture {
		return fmt.Errorf("gfx: set texture: %w: not a texture parameter", ErrInvalidArgument)
	}
	p.texture = tex
	return nil
}

// SetSampler binds a sampler to a texture parameter.
func (s *Shader) SetSampler(p *ShaderParam, smp *Sampler) error {
	if p == nil || p.typ != ParamTexture {
		return fmt.Errorf("gfx: set sampler: %w: not a texture parameter", ErrInvalidArgument)
	}
	p.sampler = smp
	return nil
}

func float32Bytes(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// compile creates the native function and the declared samplers.
func (s *Shader) compile() error {
	stage := backend.StageVertex
	if s.kind == ShaderPixel {
		stage = backend.StageFragment
	}
	fn, err := s.dev.backend.NewFunction(&backend.FunctionDescriptor{
		Label:        s.file,
		Stage:        stage,
		Source:       s.source,
		EntryPoint:   s.entry,
		TextureSlots: s.dev.maxTextures,
		Program:      s.program,
	})
	if err != nil {
		return &CompileError{Stage: s.kind, File: s.file, Diagnostic: err.Error(), Err: err}
	}
	s.fn = fn

	if s.pixel != nil {
		s.pixel.states = s.pixel.states[:0]
		for _, decl := range s.pixel.Declared {
			smp, err := s.dev.backend.NewSampler(decl.Info.descriptor(decl.Name))
			if err != nil {
				s.releaseNative()
				return resourceErr(KindSampler, decl.Name, err)
			}
			s.pixel.states = append(s.pixel.states, &Sampler{info: decl.Info, native: smp})
		}
	}
	return nil
}

// samplerFor returns the declared sampler for a texture unit, or nil.
func (s *Shader) samplerFor(unit int) *Sampler {
	if s.pixel == nil {
		return nil
	}
	for i, decl := range s.pixel.Declared {
		if decl.Unit == unit && i < len(s.pixel.states) {
			return s.pixel.states[i]
		}
	}
	return nil
}

// markAllChanged forces every parameter to upload on the next draw.
func (s *Shader) markAllChanged() {
	for _, p := range s.params {
		p.changed = true
	}
	s.block = nil
}

// uploadConstants writes changed parameters into the shader's constant
// data and returns a pooled block holding it. An unchanged shader reuses
// its block while the block's generation is still being recorded.
func (s *Shader) uploadConstants(pool *BufferPool) (*PooledBuffer, error) {
	if s.constSize == 0 {
		return nil, nil
	}
	changed := false
	for _, p := range s.params {
		if !p.changed {
			continue
		}
		if len(p.value) > 0 {
			copy(s.data[p.offset:], p.value)
		}
		changed = true
	}
	frame := pool.Generation()
	if !changed && s.block != nil && s.blockFrame == frame {
		return s.block, nil
	}
	block, err := pool.Acquire(uint64(s.constSize))
	if err != nil {
		return nil, resourceErr(KindShader, s.file, err)
	}
	if err := block.Write(0, s.data); err != nil {
		return nil, resourceErr(KindShader, s.file, err)
	}
	// Flags stay set until a block holds the values, so a failed upload is
	// retried by the next draw.
	for _, p := range s.params {
		p.changed = false
	}
	s.block = block
	s.blockFrame = frame
	return block, nil
}

func (s *Shader) releaseNative() {
	if s.fn != nil {
		s.fn.Destroy()
		s.fn = nil
	}
	if s.pixel != nil {
		for _, smp := range s.pixel.states {
			smp.native.Destroy()
		}
		s.pixel.states = nil
	}
}

func (s *Shader) release() {
	s.releaseNative()
	s.block = nil
}

func (s *Shader) rebuild() error {
	if s.fn != nil {
		return nil
	}
	if err := s.compile(); err != nil {
		return err
	}
	s.markAllChanged()
	return nil
}

// Destroy releases the shader and unregisters it. Destroy is idempotent.
func (s *Shader) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.dev.unbindShader(s)
	s.dev.retire(s.release)
	s.dev.registry.remove(s.handle)
}
