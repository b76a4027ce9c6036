package gfx

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

func testPipelineInputs(vs, ps *Shader) *pipelineInputs {
	in := &pipelineInputs{vertex: vs, pixel: ps, color: gputypes.TextureFormatRGBA8Unorm}
	in.layout.streams[0] = backend.VertexBufferLayout{
		Stride:   12,
		Format:   gputypes.VertexFormatFloat32x3,
		Location: backend.LocationPosition,
	}
	in.layout.n = 1
	return in
}

func TestStateCacheDirtyOnlyOnChange(t *testing.T) {
	dev, bd := newTestDevice(t)
	c := newStateCache(bd, 0)
	vs, ps := newShaders(t, dev, VertexInputs{})
	in := testPipelineInputs(vs, ps)

	if !c.Dirty() {
		t.Fatal("new cache should be dirty")
	}
	if _, _, err := c.resolve(in); err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if c.Dirty() {
		t.Fatal("cache still dirty after resolve")
	}

	tests := []struct {
		name  string
		apply func()
		dirty bool
	}{
		{"same blend", func() { c.SetBlendState(DefaultBlendState()) }, false},
		{"same zstencil", func() { c.SetZStencilState(DefaultZStencilState()) }, false},
		{"same raster", func() { c.SetRasterState(RasterState{Cull: gputypes.CullModeNone}) }, false},
		{"blend off", func() {
			b := DefaultBlendState()
			b.Enabled = false
			c.SetBlendState(b)
		}, true},
		{"depth on", func() {
			z := DefaultZStencilState()
			z.DepthEnabled = true
			c.SetZStencilState(z)
		}, true},
		{"cull back", func() { c.SetRasterState(RasterState{Cull: gputypes.CullModeBack}) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.apply()
			if c.Dirty() != tt.dirty {
				t.Errorf("Dirty() = %v, want %v", c.Dirty(), tt.dirty)
			}
			if _, _, err := c.resolve(in); err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
		})
	}
}

func TestStateCacheMemoizesConfigurations(t *testing.T) {
	dev, bd := newTestDevice(t)
	c := newStateCache(bd, 0)
	vs, ps := newShaders(t, dev, VertexInputs{})
	in := testPipelineInputs(vs, ps)

	first, _, err := c.resolve(in)
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	again, _, _ := c.resolve(in)
	if again != first {
		t.Error("clean resolve returned a different pipeline")
	}

	off := DefaultBlendState()
	off.Enabled = false
	c.SetBlendState(off)
	second, _, _ := c.resolve(in)
	if second == first {
		t.Error("blend change did not derive a new pipeline")
	}

	c.SetBlendState(DefaultBlendState())
	back, _, _ := c.resolve(in)
	if back != first {
		t.Error("toggling back did not reuse the first pipeline")
	}

	st := c.Stats()
	if st.Derivations != 2 || st.Hits != 1 || st.Cached != 2 {
		t.Errorf("Stats() = %+v, want Derivations 2 Hits 1 Cached 2", st)
	}
	if st.DepthDerivations != 1 {
		t.Errorf("DepthDerivations = %d, want 1", st.DepthDerivations)
	}
}

func TestStateCacheRasterDoesNotDerive(t *testing.T) {
	dev, bd := newTestDevice(t)
	c := newStateCache(bd, 0)
	vs, ps := newShaders(t, dev, VertexInputs{})
	in := testPipelineInputs(vs, ps)

	c.resolve(in)
	c.SetRasterState(RasterState{Viewport: backend.Viewport{Width: 2, Height: 2, MaxDepth: 1}})
	c.resolve(in)
	if got := c.Stats().Derivations; got != 1 {
		t.Errorf("Derivations = %d, want 1", got)
	}
}

func TestStateCacheEvictionRetires(t *testing.T) {
	dev, bd := newTestDevice(t)
	c := newStateCache(bd, 2)
	vs, ps := newShaders(t, dev, VertexInputs{})
	in := testPipelineInputs(vs, ps)

	factors := []gputypes.BlendFactor{
		gputypes.BlendFactorOne,
		gputypes.BlendFactorZero,
		gputypes.BlendFactorSrcAlpha,
		gputypes.BlendFactorOneMinusSrcAlpha,
		gputypes.BlendFactorDstAlpha,
	}
	for _, f := range factors {
		b := DefaultBlendState()
		b.SrcColor = f
		c.SetBlendState(b)
		if _, _, err := c.resolve(in); err != nil {
			t.Fatalf("resolve() error = %v", err)
		}
	}
	retired := c.takeRetired()
	if len(retired) == 0 {
		t.Fatal("no pipelines retired past the limit")
	}
	for _, destroy := range retired {
		destroy()
	}
	if c.takeRetired() != nil {
		t.Error("takeRetired() did not clear the list")
	}
}

func TestStateCachePurge(t *testing.T) {
	dev, bd := newTestDevice(t)
	c := newStateCache(bd, 0)
	vs, ps := newShaders(t, dev, VertexInputs{})
	in := testPipelineInputs(vs, ps)

	first, _, _ := c.resolve(in)
	c.purge()
	if !c.Dirty() || c.Stats().Cached != 0 {
		t.Fatalf("after purge: dirty %v cached %d", c.Dirty(), c.Stats().Cached)
	}
	second, _, err := c.resolve(in)
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if second == first {
		t.Error("purged pipeline was returned again")
	}
}

func TestZStencilDescriptor(t *testing.T) {
	tests := []struct {
		name         string
		state        ZStencilState
		compare      gputypes.CompareFunction
		depthWrite   bool
		stencilWrite uint32
	}{
		{"default disables depth", DefaultZStencilState(), gputypes.CompareFunctionAlways, false, 0},
		{"depth test and write", ZStencilState{DepthEnabled: true, DepthWrite: true, DepthFunc: gputypes.CompareFunctionLess},
			gputypes.CompareFunctionLess, true, 0},
		{"stencil write", ZStencilState{StencilEnabled: true, StencilWrite: true, StencilFunc: gputypes.CompareFunctionEqual},
			gputypes.CompareFunctionAlways, false, 0xff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.state.descriptor()
			if d.DepthCompare != tt.compare {
				t.Errorf("DepthCompare = %v, want %v", d.DepthCompare, tt.compare)
			}
			if d.DepthWriteEnabled != tt.depthWrite {
				t.Errorf("DepthWriteEnabled = %v, want %v", d.DepthWriteEnabled, tt.depthWrite)
			}
			if d.StencilWriteMask != tt.stencilWrite {
				t.Errorf("StencilWriteMask = %#x, want %#x", d.StencilWriteMask, tt.stencilWrite)
			}
		})
	}
}

func TestBlendWriteMask(t *testing.T) {
	b := DefaultBlendState()
	if b.writeMask() != gputypes.ColorWriteMaskAll {
		t.Errorf("default writeMask = %v, want all", b.writeMask())
	}
	b.WriteRed, b.WriteAlpha = false, false
	want := gputypes.ColorWriteMaskGreen | gputypes.ColorWriteMaskBlue
	if b.writeMask() != want {
		t.Errorf("writeMask = %v, want %v", b.writeMask(), want)
	}
	b.Enabled = false
	if b.native() != nil {
		t.Error("disabled blend should have no native state")
	}
}
