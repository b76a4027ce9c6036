// Command gfxdemo renders one frame through gfx on an offscreen swap chain
// and writes it as a BMP file.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"

	"golang.org/x/image/bmp"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/backend"
	_ "github.com/gogpu/gfx/backend/native"
	_ "github.com/gogpu/gfx/backend/software"
)

const vertexWGSL = `
struct Uniforms {
    view_proj: mat4x4<f32>,
};
@group(0) @binding(0) var<uniform> u: Uniforms;

struct VertexOut {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec4<f32>,
};

@vertex
fn vs_main(@location(0) pos: vec3<f32>, @location(2) color: vec4<f32>) -> VertexOut {
    var out: VertexOut;
    out.position = u.view_proj * vec4<f32>(pos, 1.0);
    out.color = color;
    return out;
}
`

const fragmentWGSL = `
@fragment
fn fs_main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`

func main() {
	var (
		width   = flag.Int("width", 256, "image width")
		height  = flag.Int("height", 256, "image height")
		output  = flag.String("output", "gfxdemo.bmp", "output file")
		name    = flag.String("backend", backend.BackendSoftware, "backend name (software, native)")
		verbose = flag.Bool("v", false, "log device activity")
	)
	flag.Parse()

	opts := []gfx.DeviceOption{gfx.WithBackendName(*name)}
	if *verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, gfx.WithLogger(l))
	}
	dev, err := gfx.NewDevice(opts...)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Close()

	img, err := render(dev, *width, *height)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		log.Fatalf("Failed to encode: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write: %v", err)
	}
	log.Printf("Frame saved to %s (%dx%d, %s backend)\n", *output, *width, *height, dev.Backend().Name())
}

// render draws a shaded triangle on a cleared swap chain drawable and
// reads the drawable back before presenting it.
func render(dev *gfx.Device, w, h int) (*image.RGBA, error) {
	surface, err := gfx.NewOffscreen(dev.Backend(), w, h, gfx.FormatRGBA, 2)
	if err != nil {
		return nil, err
	}
	defer surface.Close()
	sc, err := dev.CreateSwapChain(surface)
	if err != nil {
		return nil, err
	}
	defer sc.Destroy()
	if err := dev.LoadSwapChain(sc); err != nil {
		return nil, err
	}

	inputs := gfx.VertexInputs{Colors: true}
	vs, err := dev.CreateVertexShader(&gfx.ShaderDesc{
		File:       "demo.vs.wgsl",
		Source:     vertexWGSL,
		EntryPoint: "vs_main",
		Info:       gfx.NewShaderInfo(inputs, gfx.ParamInfo{Name: "ViewProj", Type: gfx.ParamMatrix4x4}),
	})
	if err != nil {
		return nil, err
	}
	ps, err := dev.CreatePixelShader(&gfx.ShaderDesc{
		File:       "demo.ps.wgsl",
		Source:     fragmentWGSL,
		EntryPoint: "fs_main",
		Info:       &gfx.ShaderInfo{},
	})
	if err != nil {
		return nil, err
	}
	vb, err := dev.CreateVertexBuffer("triangle", &gfx.VertexData{
		Positions: [][3]float32{{-0.8, -0.8, 0}, {0.8, -0.8, 0}, {0, 0.8, 0}},
		Colors:    [][4]float32{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}},
	}, false)
	if err != nil {
		return nil, err
	}
	defer vb.Destroy()

	if err := dev.LoadVertexShader(vs); err != nil {
		return nil, err
	}
	if err := dev.LoadPixelShader(ps); err != nil {
		return nil, err
	}
	if err := dev.LoadVertexBuffer(vb); err != nil {
		return nil, err
	}
	dev.EnableBlending(false)

	if err := dev.BeginScene(); err != nil {
		return nil, err
	}
	if err := dev.PushClearState(gfx.ClearState{Flags: gfx.ClearColor, Color: [4]float32{0.1, 0.1, 0.15, 1}}); err != nil {
		return nil, err
	}
	if err := dev.Draw(gfx.DrawTriangles, 0, 3); err != nil {
		return nil, err
	}
	if err := dev.EndScene(); err != nil {
		return nil, err
	}

	target, err := sc.Target()
	if err != nil {
		return nil, err
	}
	stage, err := dev.CreateStageSurface(w, h, gfx.FormatRGBA)
	if err != nil {
		return nil, err
	}
	defer stage.Destroy()
	if err := dev.StageTexture(stage, target); err != nil {
		return nil, err
	}
	data, stride, ok := stage.Map()
	if !ok {
		return nil, fmt.Errorf("stage surface not readable")
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		copy(img.Pix[y*img.Stride:y*img.Stride+w*4], data[y*stride:])
	}
	if err := dev.Present(); err != nil {
		return nil, err
	}
	return img, nil
}
