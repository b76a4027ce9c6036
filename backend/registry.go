package backend

import (
	"sync"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
	// BackendNative is the name of the gogpu/wgpu HAL backend.
	BackendNative = "native"
)

// Factory creates a new backend instance.
type Factory func() Backend

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
	slogger().Debug("backend registered", "name", name)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns a list of registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := backends[name]
	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available backend based on priority.
// Priority order: native > software.
// Returns nil if no backends are registered.
func Default() Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			if b := factory(); b != nil {
				return b
			}
		}
	}

	// Fallback: return first available
	for _, factory := range backends {
		if b := factory(); b != nil {
			return b
		}
	}

	return nil
}

// MustDefault returns the default backend or panics.
func MustDefault() Backend {
	b := Default()
	if b == nil {
		panic("backend: no backend available")
	}
	return b
}

// OpenDefault opens a device on the best available backend.
// If the preferred backend fails to open, lower priority backends are tried.
func OpenDefault(cfg Config) (Device, error) {
	tried := false
	seen := make(map[string]bool)
	var lastErr error
	for _, name := range append(append([]string(nil), backendPriority...), Available()...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		b := Get(name)
		if b == nil {
			continue
		}
		tried = true
		dev, err := b.Open(cfg)
		if err == nil {
			slogger().Info("backend opened", "name", name)
			return dev, nil
		}
		slogger().Warn("backend open failed", "name", name, "err", err)
		lastErr = err
	}
	if !tried {
		return nil, ErrBackendNotAvailable
	}
	return nil, lastErr
}

// Open opens a device on the named backend.
func Open(name string, cfg Config) (Device, error) {
	b := Get(name)
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	return b.Open(cfg)
}
