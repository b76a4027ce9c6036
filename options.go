package gfx

import (
	"log/slog"
	"time"

	"github.com/gogpu/gfx/backend"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	// Preferred backend on the default adapter
//	dev, err := gfx.NewDevice()
//
//	// CPU reference backend with a larger pipeline cache
//	dev, err := gfx.NewDevice(
//	    gfx.WithBackendName(backend.BackendSoftware),
//	    gfx.WithPipelineCacheSize(256),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	device        backend.Device
	backendName   string
	adapterIndex  int
	debug         bool
	maxTextures   int
	pool          PoolConfig
	pipelineCache int
	frameTimeout  time.Duration
	reflector     Reflector
	logger        *slog.Logger
}

// Defaults used when no option overrides them.
const (
	DefaultMaxTextures       = 8
	DefaultPipelineCacheSize = 64
	DefaultFrameTimeout      = 2 * time.Second
)

func defaultOptions() deviceOptions {
	return deviceOptions{
		adapterIndex:  -1,
		maxTextures:   DefaultMaxTextures,
		pool:          DefaultPoolConfig(),
		pipelineCache: DefaultPipelineCacheSize,
		frameTimeout:  DefaultFrameTimeout,
	}
}

// WithBackend uses an already opened backend device. The Device takes
// ownership and closes it on Close.
func WithBackend(dev backend.Device) DeviceOption {
	return func(o *deviceOptions) {
		o.device = dev
	}
}

// WithBackendName opens the named registered backend instead of the
// preferred one.
func WithBackendName(name string) DeviceOption {
	return func(o *deviceOptions) {
		o.backendName = name
	}
}

// WithAdapterIndex selects the physical adapter. Negative picks the
// backend's preferred adapter.
func WithAdapterIndex(i int) DeviceOption {
	return func(o *deviceOptions) {
		o.adapterIndex = i
	}
}

// WithDebug enables backend validation where available.
func WithDebug(enabled bool) DeviceOption {
	return func(o *deviceOptions) {
		o.debug = enabled
	}
}

// WithMaxTextures sets the number of texture and sampler slots.
// It is clamped to the backend limit.
func WithMaxTextures(n int) DeviceOption {
	return func(o *deviceOptions) {
		if n > 0 {
			o.maxTextures = n
		}
	}
}

// WithPoolConfig configures the constant-upload buffer pool.
func WithPoolConfig(cfg PoolConfig) DeviceOption {
	return func(o *deviceOptions) {
		o.pool = cfg
	}
}

// WithPipelineCacheSize bounds the number of derived pipeline objects kept.
// Zero means unbounded.
func WithPipelineCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) {
		if n >= 0 {
			o.pipelineCache = n
		}
	}
}

// WithFrameTimeout bounds waits for drawables and outstanding submissions.
func WithFrameTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.frameTimeout = d
		}
	}
}

// WithReflector installs shader reflection for shaders created without
// an explicit ShaderInfo.
func WithReflector(r Reflector) DeviceOption {
	return func(o *deviceOptions) {
		o.reflector = r
	}
}

// WithLogger sets the logger for this device and its backend device.
// Without it the package logger from SetLogger is used.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}
