package gfx

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gfx/backend"
)

// Surface produces presentable render targets. A window system integration
// implements it over its compositing layer.
type Surface interface {
	// NextDrawable returns the next presentable texture. It returns
	// ErrNoDrawable when none becomes available before ctx is done.
	NextDrawable(ctx context.Context) (backend.Texture, error)

	// Present queues a drawable returned by NextDrawable for display.
	Present(drawable backend.Texture) error

	// Resize recreates the drawables at the new size.
	Resize(width, height int) error

	Format() ColorFormat
	Size() (width, height int)
}

// SwapChain binds a Surface to a device. The drawable for the current
// frame is fetched lazily on first use and dropped by Present.
type SwapChain struct {
	dev    *Device
	handle Handle

	surface Surface
	current *Texture

	destroyed bool
}

// Kind implements resource.
func (sc *SwapChain) Kind() Kind { return KindSwapChain }

// Surface returns the presentation surface.
func (sc *SwapChain) Surface() Surface { return sc.surface }

// Target returns the render target for the current frame, fetching the
// next drawable when needed.
func (sc *SwapChain) Target() (*Texture, error) {
	if sc.destroyed {
		return nil, contractErr("swap chain target", ErrReleased)
	}
	if sc.current != nil {
		return sc.current, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), sc.dev.opts.frameTimeout)
	defer cancel()
	n, err := sc.surface.NextDrawable(ctx)
	if err != nil {
		return nil, err
	}
	sc.current = wrapDrawable(sc.dev, n, sc.surface.Format())
	return sc.current, nil
}

// Resize recreates the surface drawables.
func (sc *SwapChain) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("gfx: resize swap chain: %w: size %dx%d", ErrInvalidArgument, width, height)
	}
	sc.dev.unbindSwapChainTarget(sc)
	sc.current = nil
	return sc.surface.Resize(width, height)
}

// present hands the current drawable to the surface.
func (sc *SwapChain) present() error {
	if sc.current == nil {
		return nil
	}
	cur := sc.current
	sc.current = nil
	return sc.surface.Present(cur.native)
}

func (sc *SwapChain) release() {
	sc.current = nil
}

func (sc *SwapChain) rebuild() error {
	w, h := sc.surface.Size()
	return sc.surface.Resize(w, h)
}

// Destroy unregisters the swap chain. The surface stays with the caller.
// Destroy is idempotent.
func (sc *SwapChain) Destroy() {
	if sc.destroyed {
		return
	}
	sc.destroyed = true
	sc.dev.unbindSwapChain(sc)
	sc.current = nil
	sc.dev.registry.remove(sc.handle)
}

// Offscreen is a Surface over a ring of device textures. It is used for
// headless rendering and tests; the last presented drawable is kept for
// readback.
type Offscreen struct {
	dev    backend.Device
	format ColorFormat
	count  int

	mu        sync.Mutex
	width     int
	height    int
	textures  []backend.Texture
	next      int
	presented backend.Texture
	frames    uint64
}

// NewOffscreen creates a surface of count drawables on dev.
func NewOffscreen(dev backend.Device, width, height int, format ColorFormat, count int) (*Offscreen, error) {
	if !format.Renderable() {
		return nil, fmt.Errorf("gfx: offscreen: %w: %v is not renderable", ErrInvalidArgument, format)
	}
	o := &Offscreen{dev: dev, format: format, count: max(count, 1)}
	if err := o.Resize(width, height); err != nil {
		return nil, err
	}
	return o, nil
}

// NextDrawable returns the next texture of the ring.
func (o *Offscreen) NextDrawable(ctx context.Context) (backend.Texture, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDrawable, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.textures) == 0 {
		return nil, ErrNoDrawable
	}
	t := o.textures[o.next]
	o.next = (o.next + 1) % len(o.textures)
	return t, nil
}

// Present records drawable as the last presented frame.
func (o *Offscreen) Present(drawable backend.Texture) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presented = drawable
	o.frames++
	return nil
}

// Resize recreates every drawable at the new size.
func (o *Offscreen) Resize(width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	textures := make([]backend.Texture, 0, o.count)
	for range o.count {
		t, err := o.dev.NewTexture(&backend.TextureDescriptor{
			Label:     "gfx offscreen drawable",
			Width:     width,
			Height:    height,
			Depth:     1,
			MipLevels: 1,
			Dimension: gputypes.TextureDimension2D,
			Format:    o.format.Native(),
			Usage:     backend.TextureUsageRenderTarget | backend.TextureUsageCopySrc | backend.TextureUsageSampled,
		})
		if err != nil {
			for _, t := range textures {
				t.Destroy()
			}
			return resourceErr(KindSwapChain, "offscreen", err)
		}
		textures = append(textures, t)
	}
	for _, t := range o.textures {
		t.Destroy()
	}
	o.textures = textures
	o.width, o.height = width, height
	o.next = 0
	o.presented = nil
	return nil
}

func (o *Offscreen) Format() ColorFormat { return o.format }

func (o *Offscreen) Size() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// Presented returns the last presented drawable and the number of frames
// presented so far.
func (o *Offscreen) Presented() (backend.Texture, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.presented, o.frames
}

// Close destroys the drawables.
func (o *Offscreen) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.textures {
		t.Destroy()
	}
	o.textures = nil
	o.presented = nil
}
