package backend

import (
	"errors"
	"time"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoDevice is returned when no adapter matches the requested index.
	ErrNoDevice = errors.New("backend: no suitable device")

	// ErrNoDeviceMemory is returned when device memory is exhausted.
	ErrNoDeviceMemory = errors.New("backend: out of device memory")

	// ErrNoHostMemory is returned when host memory is exhausted.
	ErrNoHostMemory = errors.New("backend: out of host memory")

	// ErrDeviceLost is returned once the native device stops accepting work.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrDestroyed is returned when a destroyed object is used.
	ErrDestroyed = errors.New("backend: object destroyed")

	// ErrUnsupportedFormat is returned for formats the backend cannot allocate.
	ErrUnsupportedFormat = errors.New("backend: unsupported format")

	// ErrInvalidRegion is returned when a copy or upload region does not fit.
	ErrInvalidRegion = errors.New("backend: region out of range")

	// ErrTimeout is returned when waiting on the GPU exceeds the deadline.
	ErrTimeout = errors.New("backend: timeout waiting for GPU")

	// ErrCompile is returned when a shader function fails to compile.
	ErrCompile = errors.New("backend: shader compilation failed")
)

// Config carries options shared by every backend when opening a device.
type Config struct {
	// AdapterIndex selects the physical adapter. Negative picks the preferred one.
	AdapterIndex int

	// Debug enables validation layers where the backend has them.
	Debug bool

	// Timeout bounds synchronous waits such as readbacks. Zero means 5s.
	Timeout time.Duration
}

// WaitTimeout returns the configured timeout or the 5s default.
func (c Config) WaitTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

// Backend opens devices for one native API.
//
// Backends are registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Open creates a device on the adapter described by cfg.
	Open(cfg Config) (Device, error)
}
