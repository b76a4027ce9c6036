package native

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gfx/backend"
)

// fakeSPIRV is accepted by the noop HAL, which never inspects modules.
var fakeSPIRV = []uint32{0x07230203, 0x00010000, 0, 1, 0}

func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	d, err := openAPI(noop.API{}, Config{Config: backend.Config{AdapterIndex: -1, Timeout: 2 * time.Second}})
	if err != nil {
		t.Fatalf("openAPI(noop) error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newNoopTarget(t *testing.T, d *Device, w, h int) *Texture {
	t.Helper()
	tex, err := d.newTexture(&backend.TextureDescriptor{
		Label:  "target",
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  backend.TextureUsageRenderTarget | backend.TextureUsageCopySrc,
	})
	if err != nil {
		t.Fatalf("newTexture() error = %v", err)
	}
	return tex
}

func newNoopPipeline(t *testing.T, d *Device) *RenderPipeline {
	t.Helper()
	vs, err := d.newFunction(&backend.FunctionDescriptor{Label: "vs", Stage: backend.StageVertex, Program: fakeSPIRV})
	if err != nil {
		t.Fatalf("newFunction(vertex) error = %v", err)
	}
	fs, err := d.newFunction(&backend.FunctionDescriptor{Label: "fs", Stage: backend.StageFragment, Program: fakeSPIRV, TextureSlots: 2})
	if err != nil {
		t.Fatalf("newFunction(fragment) error = %v", err)
	}
	p, err := d.newPipeline(&backend.RenderPipelineDescriptor{
		Label:    "test",
		Vertex:   vs,
		Fragment: fs,
		Buffers: []backend.VertexBufferLayout{
			{Stride: 12, Format: gputypes.VertexFormatFloat32x3, Location: backend.LocationPosition},
		},
		ColorFormat: gputypes.TextureFormatRGBA8Unorm,
		WriteMask:   gputypes.ColorWriteMaskAll,
	})
	if err != nil {
		t.Fatalf("newPipeline() error = %v", err)
	}
	return p
}

func commitWait(t *testing.T, cb backend.CommandBuffer) error {
	t.Helper()
	done := make(chan error, 1)
	_ = cb.Commit(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("completion callback not called")
		return nil
	}
}

// =============================================================================
// Device
// =============================================================================

func TestOpenNoop(t *testing.T) {
	d := newNoopDevice(t)
	if got := d.Name(); got != "Noop Adapter" {
		t.Errorf("Name() = %q, want %q", got, "Noop Adapter")
	}
	l := d.Limits()
	if l.MaxTextureUnits != maxTextureUnits {
		t.Errorf("MaxTextureUnits = %d, want %d", l.MaxTextureUnits, maxTextureUnits)
	}
	if l.MaxVertexSlots != 8 {
		t.Errorf("MaxVertexSlots = %d, want 8", l.MaxVertexSlots)
	}
	if l.MaxTextureSize != 8192 {
		t.Errorf("MaxTextureSize = %d, want 8192", l.MaxTextureSize)
	}
	if !l.CanReadBack {
		t.Error("CanReadBack = false, want true")
	}
	if d.Lost() {
		t.Error("Lost() = true on a fresh device")
	}
}

func TestSelectAdapter(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "cpu", DeviceType: gputypes.DeviceTypeCPU}},
		{Info: gputypes.AdapterInfo{Name: "igpu", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
		{Info: gputypes.AdapterInfo{Name: "dgpu", DeviceType: gputypes.DeviceTypeDiscreteGPU}},
	}
	tests := []struct {
		name     string
		cfg      Config
		want     string
		wantFail bool
	}{
		{"index", Config{Config: backend.Config{AdapterIndex: 0}}, "cpu", false},
		{"prefer discrete", Config{Config: backend.Config{AdapterIndex: -1}, PreferDiscrete: true}, "dgpu", false},
		{"integrated", Config{Config: backend.Config{AdapterIndex: -1}}, "igpu", false},
		{"out of range", Config{Config: backend.Config{AdapterIndex: 7}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectAdapter(adapters, tt.cfg)
			if tt.wantFail {
				if !errors.Is(err, backend.ErrNoDevice) {
					t.Errorf("selectAdapter() error = %v, want ErrNoDevice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectAdapter() error = %v", err)
			}
			if got.Info.Name != tt.want {
				t.Errorf("selectAdapter() = %q, want %q", got.Info.Name, tt.want)
			}
		})
	}

	if _, err := selectAdapter(nil, Config{}); !errors.Is(err, backend.ErrNoDevice) {
		t.Errorf("selectAdapter(nil) error = %v, want ErrNoDevice", err)
	}
	first := []hal.ExposedAdapter{{Info: gputypes.AdapterInfo{Name: "only", DeviceType: gputypes.DeviceTypeCPU}}}
	got, err := selectAdapter(first, Config{Config: backend.Config{AdapterIndex: -1}, PreferDiscrete: true})
	if err != nil || got.Info.Name != "only" {
		t.Errorf("selectAdapter(fallback) = %v, %v, want only", got, err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	d, err := openAPI(noop.API{}, Config{Config: backend.Config{AdapterIndex: -1}})
	if err != nil {
		t.Fatalf("openAPI() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := d.NewCommandBuffer(); !errors.Is(err, backend.ErrDestroyed) {
		t.Errorf("NewCommandBuffer() after Close error = %v, want ErrDestroyed", err)
	}
}

// =============================================================================
// Buffers
// =============================================================================

func TestMappableBufferRoundTrip(t *testing.T) {
	d := newNoopDevice(t)
	b, err := d.newBuffer(&backend.BufferDescriptor{
		Label: "readback",
		Size:  10,
		Usage: gputypes.BufferUsageMapRead,
	})
	if err != nil {
		t.Fatalf("newBuffer() error = %v", err)
	}
	defer b.Destroy()

	// Ragged length exercises tail padding.
	if err := b.Write(4, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, 6)
	if err := b.Read(4, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	for i, v := range got {
		if v != byte(i+1) {
			t.Errorf("Read()[%d] = %d, want %d", i, v, i+1)
		}
	}
}

func TestBufferWriteErrors(t *testing.T) {
	d := newNoopDevice(t)
	priv, err := d.newBuffer(&backend.BufferDescriptor{
		Label:    "private",
		Size:     8,
		Usage:    gputypes.BufferUsageVertex,
		Storage:  backend.StoragePrivate,
		Contents: make([]byte, 8),
	})
	if err != nil {
		t.Fatalf("newBuffer(private) error = %v", err)
	}
	if err := priv.Write(0, []byte{1}); err == nil {
		t.Error("Write(private) error = nil, want error")
	}

	shared, err := d.newBuffer(&backend.BufferDescriptor{Label: "shared", Size: 8, Usage: gputypes.BufferUsageVertex})
	if err != nil {
		t.Fatalf("newBuffer(shared) error = %v", err)
	}
	if err := shared.Write(4, make([]byte, 8)); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("Write(out of range) error = %v, want ErrInvalidRegion", err)
	}
	if err := shared.Write(2, []byte{1, 2}); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("Write(unaligned) error = %v, want ErrInvalidRegion", err)
	}
	shared.Destroy()
	if err := shared.Write(0, []byte{1}); !errors.Is(err, backend.ErrDestroyed) {
		t.Errorf("Write(destroyed) error = %v, want ErrDestroyed", err)
	}

	if _, err := d.newBuffer(&backend.BufferDescriptor{Label: "empty"}); err == nil {
		t.Error("newBuffer(size 0) error = nil, want error")
	}
}

// =============================================================================
// Textures
// =============================================================================

func TestTextureValidation(t *testing.T) {
	d := newNoopDevice(t)
	tests := []struct {
		name string
		desc backend.TextureDescriptor
	}{
		{"zero size", backend.TextureDescriptor{Width: 0, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm}},
		{"too large", backend.TextureDescriptor{Width: 1 << 14, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm}},
		{"undefined format", backend.TextureDescriptor{Width: 4, Height: 4}},
		{"compressed target", backend.TextureDescriptor{
			Width: 4, Height: 4,
			Format: gputypes.TextureFormatBC1RGBAUnorm,
			Usage:  backend.TextureUsageRenderTarget,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.newTexture(&tt.desc); err == nil {
				t.Error("newTexture() error = nil, want error")
			}
		})
	}
}

func TestTextureRegions(t *testing.T) {
	d := newNoopDevice(t)
	tex := newNoopTarget(t, d, 8, 8)

	if err := tex.Replace(0, backend.Rect2D(0, 0, 8, 8), make([]byte, 8*8*4), 32); err != nil {
		t.Errorf("Replace(full) error = %v", err)
	}
	if err := tex.Replace(0, backend.Rect2D(4, 4, 8, 8), make([]byte, 8*8*4), 32); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("Replace(out of range) error = %v, want ErrInvalidRegion", err)
	}
	if err := tex.Replace(0, backend.Rect2D(0, 0, 8, 8), make([]byte, 16), 32); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("Replace(short data) error = %v, want ErrInvalidRegion", err)
	}
	if err := tex.Replace(1, backend.Rect2D(0, 0, 1, 1), make([]byte, 4), 4); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("Replace(missing level) error = %v, want ErrInvalidRegion", err)
	}

	dst := make([]byte, 2*2*4)
	if err := tex.Read(0, backend.Rect2D(2, 2, 2, 2), dst, 8); err != nil {
		t.Errorf("Read() error = %v", err)
	}
}

func TestViewDimension(t *testing.T) {
	tests := []struct {
		dim   gputypes.TextureDimension
		depth int
		want  gputypes.TextureViewDimension
	}{
		{gputypes.TextureDimension2D, 1, gputypes.TextureViewDimension2D},
		{gputypes.TextureDimension2D, 4, gputypes.TextureViewDimension2DArray},
		{gputypes.TextureDimension2D, 6, gputypes.TextureViewDimensionCube},
		{gputypes.TextureDimension3D, 4, gputypes.TextureViewDimension3D},
	}
	for _, tt := range tests {
		tex := &Texture{dim: tt.dim, depth: tt.depth}
		if got := tex.viewDimension(); got != tt.want {
			t.Errorf("viewDimension(%v, %d) = %v, want %v", tt.dim, tt.depth, got, tt.want)
		}
	}
}

// =============================================================================
// Functions and pipelines
// =============================================================================

func TestCompileWGSL(t *testing.T) {
	d := newNoopDevice(t)
	f, err := d.newFunction(&backend.FunctionDescriptor{
		Label:      "vs",
		Stage:      backend.StageVertex,
		EntryPoint: "vs_main",
		Source: `@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 1.0);
}
`,
	})
	if err != nil {
		t.Fatalf("newFunction(WGSL) error = %v", err)
	}
	if f.entry != "vs_main" {
		t.Errorf("entry = %q, want vs_main", f.entry)
	}
	if f.Stage() != backend.StageVertex {
		t.Errorf("Stage() = %v, want vertex", f.Stage())
	}

	_, err = d.newFunction(&backend.FunctionDescriptor{Label: "bad", Stage: backend.StageFragment, Source: "fn ("})
	if !errors.Is(err, backend.ErrCompile) {
		t.Errorf("newFunction(bad WGSL) error = %v, want ErrCompile", err)
	}
	_, err = d.newFunction(&backend.FunctionDescriptor{Label: "none", Stage: backend.StageFragment})
	if !errors.Is(err, backend.ErrCompile) {
		t.Errorf("newFunction(no source) error = %v, want ErrCompile", err)
	}
}

func TestFunctionTextureSlotsClamped(t *testing.T) {
	d := newNoopDevice(t)
	f, err := d.newFunction(&backend.FunctionDescriptor{Stage: backend.StageFragment, Program: fakeSPIRV, TextureSlots: 32})
	if err != nil {
		t.Fatalf("newFunction() error = %v", err)
	}
	if f.textureSlots != maxTextureUnits {
		t.Errorf("textureSlots = %d, want %d", f.textureSlots, maxTextureUnits)
	}
	if f.entry != "main" {
		t.Errorf("entry = %q, want main", f.entry)
	}
}

func TestPipelineValidation(t *testing.T) {
	d := newNoopDevice(t)
	vs, _ := d.newFunction(&backend.FunctionDescriptor{Stage: backend.StageVertex, Program: fakeSPIRV})
	fs, _ := d.newFunction(&backend.FunctionDescriptor{Stage: backend.StageFragment, Program: fakeSPIRV})

	if _, err := d.newPipeline(&backend.RenderPipelineDescriptor{Vertex: fs, Fragment: fs}); err == nil {
		t.Error("newPipeline(fragment as vertex) error = nil, want error")
	}
	_, err := d.newPipeline(&backend.RenderPipelineDescriptor{
		Vertex:   vs,
		Fragment: fs,
		Buffers:  []backend.VertexBufferLayout{{Stride: 12, Location: 0}},
	})
	if !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("newPipeline(undefined format) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestStencilOpMapping(t *testing.T) {
	tests := []struct {
		op   backend.StencilOp
		want hal.StencilOperation
	}{
		{backend.StencilKeep, hal.StencilOperationKeep},
		{backend.StencilZero, hal.StencilOperationZero},
		{backend.StencilReplace, hal.StencilOperationReplace},
		{backend.StencilIncrClamp, hal.StencilOperationIncrementClamp},
		{backend.StencilDecrClamp, hal.StencilOperationDecrementClamp},
		{backend.StencilInvert, hal.StencilOperationInvert},
		{backend.StencilIncrWrap, hal.StencilOperationIncrementWrap},
		{backend.StencilDecrWrap, hal.StencilOperationDecrementWrap},
		{backend.StencilOp(200), hal.StencilOperationKeep},
	}
	for _, tt := range tests {
		if got := halStencilOp(tt.op); got != tt.want {
			t.Errorf("halStencilOp(%d) = %v, want %v", tt.op, got, tt.want)
		}
	}
}

func TestHALDepthStencil(t *testing.T) {
	s := halDepthStencil(gputypes.TextureFormatDepth24PlusStencil8, nil)
	if s.DepthCompare != gputypes.CompareFunctionAlways || s.DepthWriteEnabled {
		t.Errorf("nil desc: compare = %v, write = %v, want always/false", s.DepthCompare, s.DepthWriteEnabled)
	}

	desc := &backend.DepthStencilDescriptor{
		DepthTestEnabled:  true,
		DepthWriteEnabled: true,
		DepthCompare:      gputypes.CompareFunctionLess,
		StencilEnabled:    true,
		StencilFront:      backend.StencilFace{Compare: gputypes.CompareFunctionEqual, PassOp: backend.StencilIncrClamp},
		StencilWriteMask:  0xff,
	}
	s = halDepthStencil(gputypes.TextureFormatDepth24PlusStencil8, desc)
	if s.DepthCompare != gputypes.CompareFunctionLess || !s.DepthWriteEnabled {
		t.Errorf("depth = %v/%v, want less/true", s.DepthCompare, s.DepthWriteEnabled)
	}
	if s.StencilFront.PassOp != hal.StencilOperationIncrementClamp {
		t.Errorf("StencilFront.PassOp = %v, want IncrementClamp", s.StencilFront.PassOp)
	}
	if s.StencilBack.Compare != gputypes.CompareFunctionAlways {
		t.Errorf("StencilBack.Compare = %v, want Always", s.StencilBack.Compare)
	}

	// A depth-only attachment ignores stencil settings.
	s = halDepthStencil(gputypes.TextureFormatDepth32Float, desc)
	if s.StencilWriteMask != 0 {
		t.Errorf("depth-only StencilWriteMask = %#x, want 0", s.StencilWriteMask)
	}
}

// =============================================================================
// Command buffers
// =============================================================================

func TestDrawCachesVariants(t *testing.T) {
	d := newNoopDevice(t)
	target := newNoopTarget(t, d, 16, 16)
	p := newNoopPipeline(t, d)
	vb, err := d.newBuffer(&backend.BufferDescriptor{Label: "vb", Size: 36, Usage: gputypes.BufferUsageVertex})
	if err != nil {
		t.Fatalf("newBuffer() error = %v", err)
	}

	cb, err := d.NewCommandBuffer()
	if err != nil {
		t.Fatalf("NewCommandBuffer() error = %v", err)
	}
	enc, err := cb.BeginRenderPass(&backend.RenderPassDescriptor{
		Color:     target,
		ColorLoad: gputypes.LoadOpClear,
	})
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	enc.SetPipeline(p)
	enc.SetVertexBuffer(0, vb, 0)
	for range 3 {
		if err := enc.Draw(gputypes.PrimitiveTopologyTriangleList, 0, 3); err != nil {
			t.Fatalf("Draw() error = %v", err)
		}
	}
	if got := p.variants.Len(); got != 1 {
		t.Errorf("variants after repeated draws = %d, want 1", got)
	}
	enc.SetCullMode(gputypes.CullModeBack)
	if err := enc.Draw(gputypes.PrimitiveTopologyTriangleList, 0, 3); err != nil {
		t.Fatalf("Draw(cull back) error = %v", err)
	}
	enc.SetCullMode(gputypes.CullModeNone)
	if err := enc.Draw(gputypes.PrimitiveTopologyTriangleStrip, 0, 3); err != nil {
		t.Fatalf("Draw(strip) error = %v", err)
	}
	if got := p.variants.Len(); got != 3 {
		t.Errorf("variants = %d, want 3", got)
	}
	if err := enc.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := commitWait(t, cb); err != nil {
		t.Errorf("commit error = %v", err)
	}
}

func TestDrawIndexedRange(t *testing.T) {
	d := newNoopDevice(t)
	target := newNoopTarget(t, d, 4, 4)
	p := newNoopPipeline(t, d)
	ib, err := d.newBuffer(&backend.BufferDescriptor{Label: "ib", Size: 12, Usage: gputypes.BufferUsageIndex})
	if err != nil {
		t.Fatalf("newBuffer() error = %v", err)
	}

	cb, _ := d.NewCommandBuffer()
	enc, err := cb.BeginRenderPass(&backend.RenderPassDescriptor{Color: target})
	if err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	enc.SetPipeline(p)
	if err := enc.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, ib, gputypes.IndexFormatUint16, 0, 6); err != nil {
		t.Errorf("DrawIndexed(in range) error = %v", err)
	}
	if err := enc.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, ib, gputypes.IndexFormatUint32, 0, 6); !errors.Is(err, errIndexOutOfData) {
		t.Errorf("DrawIndexed(out of range) error = %v, want errIndexOutOfData", err)
	}
	_ = enc.End()
	_ = commitWait(t, cb)
}

func TestDrawWithoutPipeline(t *testing.T) {
	d := newNoopDevice(t)
	target := newNoopTarget(t, d, 4, 4)
	cb, _ := d.NewCommandBuffer()
	enc, _ := cb.BeginRenderPass(&backend.RenderPassDescriptor{Color: target})
	if err := enc.Draw(gputypes.PrimitiveTopologyTriangleList, 0, 3); err == nil {
		t.Error("Draw() without pipeline error = nil, want error")
	}
	_ = enc.End()
	_ = commitWait(t, cb)
}

func TestCommitOpenEncoder(t *testing.T) {
	d := newNoopDevice(t)
	target := newNoopTarget(t, d, 4, 4)
	cb, _ := d.NewCommandBuffer()
	if _, err := cb.BeginRenderPass(&backend.RenderPassDescriptor{Color: target}); err != nil {
		t.Fatalf("BeginRenderPass() error = %v", err)
	}
	if _, err := cb.BeginBlit(); !errors.Is(err, errEncoderOpen) {
		t.Errorf("BeginBlit() with open pass error = %v, want errEncoderOpen", err)
	}
	if err := commitWait(t, cb); !errors.Is(err, errEncoderOpen) {
		t.Errorf("completion error = %v, want errEncoderOpen", err)
	}
	if err := cb.Commit(func(error) { t.Error("second commit called back") }); !errors.Is(err, errCommitted) {
		t.Errorf("second Commit() error = %v, want errCommitted", err)
	}
}

func TestCompletionOrder(t *testing.T) {
	d := newNoopDevice(t)
	const n = 8
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	wg.Add(n)
	for i := range n {
		cb, err := d.NewCommandBuffer()
		if err != nil {
			t.Fatalf("NewCommandBuffer() error = %v", err)
		}
		err = cb.Commit(func(err error) {
			if err != nil {
				t.Errorf("completion %d error = %v", i, err)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("completion order = %v, want ascending", order)
		}
	}
}

func TestBlitCopyTexture(t *testing.T) {
	d := newNoopDevice(t)
	src := newNoopTarget(t, d, 8, 8)
	dst := newNoopTarget(t, d, 4, 4)

	cb, _ := d.NewCommandBuffer()
	blit, err := cb.BeginBlit()
	if err != nil {
		t.Fatalf("BeginBlit() error = %v", err)
	}
	if err := blit.CopyTexture(src, 0, backend.Origin{X: 2, Y: 2}, dst, 0, backend.Origin{}, backend.Extent{Width: 4, Height: 4, Depth: 1}); err != nil {
		t.Errorf("CopyTexture() error = %v", err)
	}
	if err := blit.CopyTexture(src, 0, backend.Origin{}, dst, 0, backend.Origin{X: 2}, backend.Extent{Width: 4, Height: 4, Depth: 1}); !errors.Is(err, backend.ErrInvalidRegion) {
		t.Errorf("CopyTexture(out of range) error = %v, want ErrInvalidRegion", err)
	}
	if err := blit.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := commitWait(t, cb); err != nil {
		t.Errorf("commit error = %v", err)
	}
}
