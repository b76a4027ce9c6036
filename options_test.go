package gfx

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/backend/software"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.adapterIndex != -1 {
		t.Errorf("adapterIndex = %d, want -1", o.adapterIndex)
	}
	if o.maxTextures != DefaultMaxTextures {
		t.Errorf("maxTextures = %d, want %d", o.maxTextures, DefaultMaxTextures)
	}
	if o.pipelineCache != DefaultPipelineCacheSize {
		t.Errorf("pipelineCache = %d, want %d", o.pipelineCache, DefaultPipelineCacheSize)
	}
	if o.frameTimeout != DefaultFrameTimeout {
		t.Errorf("frameTimeout = %v, want %v", o.frameTimeout, DefaultFrameTimeout)
	}
	if o.pool != DefaultPoolConfig() {
		t.Errorf("pool = %+v, want %+v", o.pool, DefaultPoolConfig())
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		opt   DeviceOption
		check func(o deviceOptions) bool
	}{
		{"zero max textures", WithMaxTextures(0), func(o deviceOptions) bool { return o.maxTextures == DefaultMaxTextures }},
		{"negative max textures", WithMaxTextures(-3), func(o deviceOptions) bool { return o.maxTextures == DefaultMaxTextures }},
		{"negative cache size", WithPipelineCacheSize(-1), func(o deviceOptions) bool { return o.pipelineCache == DefaultPipelineCacheSize }},
		{"zero cache size means unbounded", WithPipelineCacheSize(0), func(o deviceOptions) bool { return o.pipelineCache == 0 }},
		{"zero timeout", WithFrameTimeout(0), func(o deviceOptions) bool { return o.frameTimeout == DefaultFrameTimeout }},
		{"timeout", WithFrameTimeout(time.Second), func(o deviceOptions) bool { return o.frameTimeout == time.Second }},
		{"adapter", WithAdapterIndex(2), func(o deviceOptions) bool { return o.adapterIndex == 2 }},
		{"debug", WithDebug(true), func(o deviceOptions) bool { return o.debug }},
		{"backend name", WithBackendName("software"), func(o deviceOptions) bool { return o.backendName == "software" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(&o)
			if !tt.check(o) {
				t.Errorf("option produced %+v", o)
			}
		})
	}
}

func TestNewDeviceWithBackendName(t *testing.T) {
	dev, err := NewDevice(WithBackendName(backend.BackendSoftware))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer func() { _ = dev.Close() }()

	if _, ok := dev.Backend().(*software.Device); !ok {
		t.Errorf("Backend() = %T, want *software.Device", dev.Backend())
	}
}

func TestNewDeviceUnknownBackend(t *testing.T) {
	_, err := NewDevice(WithBackendName("no-such-backend"))
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("NewDevice() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestWithMaxTexturesClampedToLimit(t *testing.T) {
	bd := software.NewDevice(backend.Config{})
	limit := bd.Limits().MaxTextureUnits
	dev, err := NewDevice(WithBackend(bd), WithMaxTextures(limit+10))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	defer func() { _ = dev.Close() }()

	if dev.MaxTextures() != limit {
		t.Errorf("MaxTextures() = %d, want %d", dev.MaxTextures(), limit)
	}
}
