package gfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// Vertex stream limits.
const (
	MaxUVChannels    = 8
	MaxVertexStreams = 4 + MaxUVChannels
)

// UVChannel is one texture-coordinate stream. Width is 2 or 4 floats per
// vertex and Coords holds Width floats for every vertex.
type UVChannel struct {
	Width  int
	Coords []float32
}

// VertexData is the shader-agnostic attribute arrays of a vertex buffer.
// Positions are mandatory; every other non-nil array must have one entry
// per position.
type VertexData struct {
	Positions [][3]float32
	Normals   [][3]float32
	Tangents  [][3]float32
	Colors    [][4]float32
	UVs       []UVChannel
}

// NumVertices returns the vertex count.
func (v *VertexData) NumVertices() int { return len(v.Positions) }

func (v *VertexData) validate() error {
	n := len(v.Positions)
	if n == 0 {
		return fmt.Errorf("%w: no positions", ErrInvalidArgument)
	}
	check := func(name string, got int) error {
		if got != 0 && got != n {
			return fmt.Errorf("%w: %d %s for %d positions", ErrInvalidArgument, got, name, n)
		}
		return nil
	}
	if err := check("normals", len(v.Normals)); err != nil {
		return err
	}
	if err := check("tangents", len(v.Tangents)); err != nil {
		return err
	}
	if err := check("colors", len(v.Colors)); err != nil {
		return err
	}
	if len(v.UVs) > MaxUVChannels {
		return fmt.Errorf("%w: %d UV channels, max %d", ErrInvalidArgument, len(v.UVs), MaxUVChannels)
	}
	for i, uv := range v.UVs {
		if uv.Width != 2 && uv.Width != 4 {
			return fmt.Errorf("%w: UV channel %d width %d", ErrInvalidArgument, i, uv.Width)
		}
		if len(uv.Coords) != uv.Width*n {
			return fmt.Errorf("%w: UV channel %d has %d coords, want %d", ErrInvalidArgument, i, len(uv.Coords), uv.Width*n)
		}
	}
	return nil
}

// clone returns a deep copy so the buffer exclusively owns its arrays.
func (v *VertexData) clone() VertexData {
	out := VertexData{
		Positions: append([][3]float32(nil), v.Positions...),
		Normals:   append([][3]float32(nil), v.Normals...),
		Tangents:  append([][3]float32(nil), v.Tangents...),
		Colors:    append([][4]float32(nil), v.Colors...),
	}
	for _, uv := range v.UVs {
		out.UVs = append(out.UVs, UVChannel{Width: uv.Width, Coords: append([]float32(nil), uv.Coords...)})
	}
	return out
}

// streams describes the attribute streams the data provides.
func (v *VertexData) streams() VertexStreams {
	s := VertexStreams{
		Normals:  len(v.Normals) > 0,
		Tangents: len(v.Tangents) > 0,
		Colors:   len(v.Colors) > 0,
	}
	for _, uv := range v.UVs {
		s.UVWidths = append(s.UVWidths, uv.Width)
	}
	return s
}

// streamBytes encodes stream st as little-endian floats, or nil when absent.
func (v *VertexData) streamBytes(st Stream) []byte {
	switch {
	case st == StreamPosition:
		return vec3Bytes(v.Positions)
	case st == StreamNormal:
		return vec3Bytes(v.Normals)
	case st == StreamTangent:
		return vec3Bytes(v.Tangents)
	case st == StreamColor:
		if len(v.Colors) == 0 {
			return nil
		}
		flat := make([]float32, 0, 4*len(v.Colors))
		for _, c := range v.Colors {
			flat = append(flat, c[:]...)
		}
		return floatBytes(flat)
	case st >= StreamUV0 && int(st-StreamUV0) < len(v.UVs):
		return floatBytes(v.UVs[st-StreamUV0].Coords)
	}
	return nil
}

func vec3Bytes(v [][3]float32) []byte {
	if len(v) == 0 {
		return nil
	}
	flat := make([]float32, 0, 3*len(v))
	for _, p := range v {
		flat = append(flat, p[:]...)
	}
	return floatBytes(flat)
}

func floatBytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// VertexBuffer holds vertex attributes and one native buffer per stream.
//
// Static buffers upload once into private storage. Dynamic buffers accept
// Flush; the new arrays are pending until the next draw that uses the
// buffer, which uploads them into fresh shared-storage buffers.
type VertexBuffer struct {
	dev    *Device
	handle Handle
	label  string

	data    VertexData
	dynamic bool

	native  [MaxVertexStreams]backend.Buffer
	created bool
	pending bool
	// version changes whenever the set of available streams changes.
	version uint64

	destroyed bool
}

func newVertexBuffer(dev *Device, label string, data *VertexData, dynamic bool) (*VertexBuffer, error) {
	if err := data.validate(); err != nil {
		return nil, fmt.Errorf("gfx: vertex buffer %q: %w", label, err)
	}
	return &VertexBuffer{
		dev:     dev,
		label:   label,
		data:    data.clone(),
		dynamic: dynamic,
		version: 1,
	}, nil
}

// Kind implements resource.
func (vb *VertexBuffer) Kind() Kind { return KindVertexBuffer }

// NumVertices returns the vertex count.
func (vb *VertexBuffer) NumVertices() int { return vb.data.NumVertices() }

// Dynamic reports whether the buffer accepts Flush.
func (vb *VertexBuffer) Dynamic() bool { return vb.dynamic }

// Data returns the buffer-owned attribute arrays. Callers must not modify them.
func (vb *VertexBuffer) Data() *VertexData { return &vb.data }

// Streams describes the attribute streams the buffer provides.
func (vb *VertexBuffer) Streams() VertexStreams { return vb.data.streams() }

// Native returns the native buffer of stream st, or nil when it has not
// been created or was released.
func (vb *VertexBuffer) Native(st Stream) backend.Buffer {
	if int(st) >= len(vb.native) {
		return nil
	}
	return vb.native[st]
}

// Flush replaces the attribute arrays of a dynamic buffer. The upload is
// deferred to the next draw using the buffer.
func (vb *VertexBuffer) Flush(data *VertexData) error {
	if vb.destroyed {
		return contractErr("flush vertex buffer", ErrReleased)
	}
	if !vb.dynamic {
		return contractErr("flush vertex buffer", fmt.Errorf("%w: %q is static", ErrInvalidArgument, vb.label))
	}
	if err := data.validate(); err != nil {
		return fmt.Errorf("gfx: vertex buffer %q: %w", vb.label, err)
	}
	old := vb.data.streams()
	vb.data = data.clone()
	if !old.equal(vb.data.streams()) {
		vb.version++
	}
	vb.pending = true
	return nil
}

// ensure creates the native buffers when missing and uploads pending data.
func (vb *VertexBuffer) ensure() error {
	if vb.destroyed {
		return ErrReleased
	}
	if vb.created && !vb.pending {
		return nil
	}
	var fresh [MaxVertexStreams]backend.Buffer
	for st := range Stream(MaxVertexStreams) {
		contents := vb.data.streamBytes(st)
		if contents == nil {
			continue
		}
		storage := backend.StoragePrivate
		if vb.dynamic {
			storage = backend.StorageShared
		}
		buf, err := vb.dev.backend.NewBuffer(&backend.BufferDescriptor{
			Label:    vb.label + " " + st.String(),
			Size:     uint64(len(contents)),
			Usage:    gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
			Storage:  storage,
			Contents: contents,
		})
		if err != nil {
			for _, b := range fresh {
				if b != nil {
					b.Destroy()
				}
			}
			return resourceErr(KindVertexBuffer, vb.label, err)
		}
		fresh[st] = buf
	}

	if vb.created {
		old := vb.native
		vb.dev.retire(func() { destroyBuffers(old[:]) })
	}
	vb.native = fresh
	vb.created = true
	vb.pending = false
	return nil
}

func destroyBuffers(bufs []backend.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Destroy()
		}
	}
}

func (vb *VertexBuffer) release() {
	destroyBuffers(vb.native[:])
	vb.native = [MaxVertexStreams]backend.Buffer{}
	vb.created = false
}

func (vb *VertexBuffer) rebuild() error {
	return vb.ensure()
}

// Destroy releases the buffer and unregisters it. Destroy is idempotent.
func (vb *VertexBuffer) Destroy() {
	if vb.destroyed {
		return
	}
	vb.destroyed = true
	vb.dev.unbindVertexBuffer(vb)
	old := vb.native
	vb.dev.retire(func() { destroyBuffers(old[:]) })
	vb.native = [MaxVertexStreams]backend.Buffer{}
	vb.dev.registry.remove(vb.handle)
}
