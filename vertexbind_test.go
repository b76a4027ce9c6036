package gfx

import (
	"errors"
	"testing"

	"github.com/gogpu/gfx/backend"
)

func TestResolveVertexBindings(t *testing.T) {
	tests := []struct {
		name    string
		in      VertexInputs
		avail   VertexStreams
		streams []Stream
	}{
		{
			name:    "position only",
			in:      VertexInputs{},
			avail:   VertexStreams{Normals: true, UVWidths: []int{2}},
			streams: []Stream{StreamPosition},
		},
		{
			name:    "normals and two uvs",
			in:      VertexInputs{Normals: true, UVs: 2},
			avail:   VertexStreams{Normals: true, UVWidths: []int{2, 2}},
			streams: []Stream{StreamPosition, StreamNormal, StreamUV0, StreamUV0 + 1},
		},
		{
			name:    "all optional streams",
			in:      VertexInputs{Normals: true, Colors: true, Tangents: true, UVs: 1},
			avail:   VertexStreams{Normals: true, Colors: true, Tangents: true, UVWidths: []int{4}},
			streams: []Stream{StreamPosition, StreamNormal, StreamColor, StreamTangent, StreamUV0},
		},
		{
			name:    "unused streams skipped",
			in:      VertexInputs{Colors: true},
			avail:   VertexStreams{Normals: true, Colors: true, Tangents: true},
			streams: []Stream{StreamPosition, StreamColor},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveVertexBindings(tt.in, tt.avail)
			if err != nil {
				t.Fatalf("ResolveVertexBindings() error = %v", err)
			}
			if len(got) != len(tt.streams) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.streams))
			}
			if len(got) != tt.in.NumBuffersExpected() {
				t.Errorf("len = %d, NumBuffersExpected = %d", len(got), tt.in.NumBuffersExpected())
			}
			for i, b := range got {
				if b.Stream != tt.streams[i] {
					t.Errorf("slot %d = %v, want %v", i, b.Stream, tt.streams[i])
				}
			}
		})
	}
}

func TestResolveVertexBindingsLayouts(t *testing.T) {
	got, err := ResolveVertexBindings(VertexInputs{Normals: true, UVs: 2}, VertexStreams{Normals: true, UVWidths: []int{2, 4}})
	if err != nil {
		t.Fatalf("ResolveVertexBindings() error = %v", err)
	}
	want := []struct {
		stride   uint64
		location uint32
	}{
		{12, backend.LocationPosition},
		{12, backend.LocationNormal},
		{8, backend.LocationUV0},
		{16, backend.LocationUV0 + 1},
	}
	for i, w := range want {
		if got[i].Layout.Stride != w.stride || got[i].Layout.Location != w.location {
			t.Errorf("slot %d layout = %+v, want stride %d location %d", i, got[i].Layout, w.stride, w.location)
		}
	}
}

func TestResolveVertexBindingsMissing(t *testing.T) {
	tests := []struct {
		name      string
		in        VertexInputs
		avail     VertexStreams
		attribute string
		required  int
		available int
	}{
		{"normals", VertexInputs{Normals: true}, VertexStreams{}, "normal", 1, 0},
		{"colors", VertexInputs{Colors: true}, VertexStreams{Normals: true}, "color", 1, 0},
		{"tangents", VertexInputs{Tangents: true}, VertexStreams{}, "tangent", 1, 0},
		{"uvs", VertexInputs{UVs: 3}, VertexStreams{UVWidths: []int{2}}, "uv", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveVertexBindings(tt.in, tt.avail)
			var ae *AttributeError
			if !errors.As(err, &ae) {
				t.Fatalf("error = %v, want *AttributeError", err)
			}
			if ae.Attribute != tt.attribute || ae.Required != tt.required || ae.Available != tt.available {
				t.Errorf("AttributeError = %+v, want %s %d/%d", ae, tt.attribute, tt.required, tt.available)
			}
			if !errors.Is(err, ErrMissingAttribute) {
				t.Error("error does not wrap ErrMissingAttribute")
			}
		})
	}
}

func TestResolveVertexBindingsInvalidUVs(t *testing.T) {
	for _, uvs := range []int{-3, MaxUVChannels + 1} {
		_, err := ResolveVertexBindings(VertexInputs{UVs: uvs}, VertexStreams{})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ResolveVertexBindings(UVs: %d) error = %v, want ErrInvalidArgument", uvs, err)
		}
	}
}

func TestVertexBindingCacheVersion(t *testing.T) {
	dev, _ := newTestDevice(t)
	vs, _ := newShaders(t, dev, VertexInputs{})
	vb, err := dev.CreateVertexBuffer("dyn", lowerLeftTriangle(), true)
	mustOK(t, err)

	var c vertexBindingCache
	for range 3 {
		if _, _, err := c.lookup(vb, vs); err != nil {
			t.Fatalf("lookup() error = %v", err)
		}
	}
	if c.resolves != 1 {
		t.Errorf("resolves = %d, want 1", c.resolves)
	}

	// Same streams: no new resolution.
	mustOK(t, vb.Flush(lowerLeftTriangle()))
	c.lookup(vb, vs)
	if c.resolves != 1 {
		t.Errorf("resolves after same-shape flush = %d, want 1", c.resolves)
	}

	// A new stream changes the buffer version.
	data := lowerLeftTriangle()
	data.Normals = [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	mustOK(t, vb.Flush(data))
	c.lookup(vb, vs)
	if c.resolves != 2 {
		t.Errorf("resolves after stream change = %d, want 2", c.resolves)
	}
}
