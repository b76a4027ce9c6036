//go:build !nogpu && !android && !js

package native

import (
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gfx/backend"
)

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return Backend{}
	})
}
