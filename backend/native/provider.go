package native

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx/backend"
)

// OpenProvider wraps the device of a host application, such as a gogpu
// window. The provider must also implement HalDevice() any and HalQueue()
// any returning hal.Device and hal.Queue. Closing the returned device leaves
// the provider's device open.
func OpenProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("native: provider does not expose HAL types: %w", backend.ErrNoDevice)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("native: provider HalDevice is not hal.Device: %w", backend.ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("native: provider HalQueue is not hal.Queue: %w", backend.ErrNoDevice)
	}
	name := provider.AdapterInfo().Name
	if name == "" {
		name = "external"
	}
	return NewFromHAL(dev, queue, name, gputypes.DefaultLimits(), cfg)
}
