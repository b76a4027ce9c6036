package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

// wantVertexBuffers is the vertex buffer limit requested when the adapter
// allows it. The default limits only guarantee 8 slots.
const wantVertexBuffers = 16

// Backend opens native devices on the platform HAL.
type Backend struct {
	// Variant is the HAL backend to open. BackendEmpty means Vulkan.
	Variant gputypes.Backend
}

// Name returns the backend identifier.
func (Backend) Name() string { return backend.BackendNative }

// Open opens a device with the shared options and discrete-GPU preference.
func (b Backend) Open(cfg backend.Config) (backend.Device, error) {
	d, err := b.OpenConfig(Config{Config: cfg, PreferDiscrete: true})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// OpenConfig opens a device with native-specific options.
func (b Backend) OpenConfig(cfg Config) (*Device, error) {
	variant := b.Variant
	if variant == gputypes.BackendEmpty {
		variant = gputypes.BackendVulkan
	}
	return openVariant(variant, cfg)
}

func openVariant(variant gputypes.Backend, cfg Config) (*Device, error) {
	api, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("native: %v: %w", variant, backend.ErrBackendNotAvailable)
	}
	return openAPI(api, cfg)
}

func openAPI(api hal.Backend, cfg Config) (*Device, error) {
	flags := gputypes.InstanceFlags(0)
	if cfg.Debug {
		flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	inst, err := api.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << api.Variant(),
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := inst.EnumerateAdapters(nil)
	sel, err := selectAdapter(adapters, cfg)
	if err != nil {
		inst.Destroy()
		return nil, err
	}

	limits := gputypes.DefaultLimits()
	if sel.Capabilities.Limits.MaxVertexBuffers >= wantVertexBuffers {
		limits.MaxVertexBuffers = wantVertexBuffers
	}
	open, err := sel.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("native: open %q: %w", sel.Info.Name, mapErr(err))
	}

	d, err := NewFromHAL(open.Device, open.Queue, sel.Info.Name, limits, cfg)
	if err != nil {
		open.Device.Destroy()
		inst.Destroy()
		return nil, err
	}
	d.external = false
	d.instance = inst
	return d, nil
}

// selectAdapter picks cfg.AdapterIndex, or for a negative index a discrete
// GPU (when preferred), then an integrated one, then the first adapter.
func selectAdapter(adapters []hal.ExposedAdapter, cfg Config) (*hal.ExposedAdapter, error) {
	if len(adapters) == 0 {
		return nil, backend.ErrNoDevice
	}
	if cfg.AdapterIndex >= 0 {
		if cfg.AdapterIndex >= len(adapters) {
			return nil, fmt.Errorf("native: adapter %d of %d: %w", cfg.AdapterIndex, len(adapters), backend.ErrNoDevice)
		}
		return &adapters[cfg.AdapterIndex], nil
	}

	order := []gputypes.DeviceType{gputypes.DeviceTypeIntegratedGPU}
	if cfg.PreferDiscrete {
		order = []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU}
	}
	for _, want := range order {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i], nil
			}
		}
	}
	return &adapters[0], nil
}
