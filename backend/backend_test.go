package backend

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

// stubBackend is a backend that only reports its name or a fixed open error.
type stubBackend struct {
	name    string
	openErr error
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Open(Config) (Device, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return nil, errors.New("stub: no device")
}

func TestRegistryRegisterAndGet(t *testing.T) {
	Register("test-get", func() Backend { return &stubBackend{name: "test-get"} })
	defer Unregister("test-get")

	if !IsRegistered("test-get") {
		t.Error("test-get should be registered")
	}

	b := Get("test-get")
	if b == nil {
		t.Fatal("Get(test-get) returned nil")
	}
	if b.Name() != "test-get" {
		t.Errorf("Get(test-get).Name() = %q, want %q", b.Name(), "test-get")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if b := Get("nonexistent"); b != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestRegistryAvailable(t *testing.T) {
	Register("test-available", func() Backend { return &stubBackend{name: "test-available"} })
	defer Unregister("test-available")

	found := false
	for _, name := range Available() {
		if name == "test-available" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Available() should include 'test-available'")
	}
}

func TestRegistryDefaultPriority(t *testing.T) {
	Register(BackendSoftware, func() Backend { return &stubBackend{name: BackendSoftware} })
	Register(BackendNative, func() Backend { return &stubBackend{name: BackendNative} })
	defer Unregister(BackendSoftware)
	defer Unregister(BackendNative)

	b := Default()
	if b == nil {
		t.Fatal("Default() returned nil")
	}
	if b.Name() != BackendNative {
		t.Errorf("Default().Name() = %q, want %q", b.Name(), BackendNative)
	}
}

func TestRegistryMustDefault(t *testing.T) {
	Register("test-must", func() Backend { return &stubBackend{name: "test-must"} })
	defer Unregister("test-must")

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustDefault() panicked: %v", r)
		}
	}()
	if b := MustDefault(); b == nil {
		t.Error("MustDefault() returned nil")
	}
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-backend", func() Backend { return &stubBackend{name: "test-backend"} })
	if !IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}

	Unregister("test-backend")

	if IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("nonexistent", Config{})
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenDefaultReportsLastError(t *testing.T) {
	wantErr := errors.New("no adapter")
	Register("test-failing", func() Backend { return &stubBackend{name: "test-failing", openErr: wantErr} })
	defer Unregister("test-failing")

	if _, err := OpenDefault(Config{}); err == nil {
		t.Error("OpenDefault() should fail when every backend fails")
	}
}

// =============================================================================
// Format helpers
// =============================================================================

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   int
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRG8Unorm, 2},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatBGRA8Unorm, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatBC1RGBAUnorm, 0},
	}
	for _, tt := range tests {
		if got := BytesPerPixel(tt.format); got != tt.want {
			t.Errorf("BytesPerPixel(%v) = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestRowBytesCompressed(t *testing.T) {
	if got := RowBytes(gputypes.TextureFormatBC1RGBAUnorm, 16); got != 32 {
		t.Errorf("RowBytes(BC1, 16) = %d, want 32", got)
	}
	if got := RowBytes(gputypes.TextureFormatBC3RGBAUnorm, 5); got != 32 {
		t.Errorf("RowBytes(BC3, 5) = %d, want 32", got)
	}
	if got := RowCount(gputypes.TextureFormatBC3RGBAUnorm, 5); got != 2 {
		t.Errorf("RowCount(BC3, 5) = %d, want 2", got)
	}
}

func TestMipSize(t *testing.T) {
	tests := []struct{ base, level, want int }{
		{256, 0, 256},
		{256, 3, 32},
		{3, 1, 1},
		{3, 5, 1},
	}
	for _, tt := range tests {
		if got := MipSize(tt.base, tt.level); got != tt.want {
			t.Errorf("MipSize(%d, %d) = %d, want %d", tt.base, tt.level, got, tt.want)
		}
	}
}

func TestTextureUsageHas(t *testing.T) {
	u := TextureUsageSampled | TextureUsageRenderTarget
	if !u.Has(TextureUsageRenderTarget) {
		t.Error("Has(RenderTarget) = false, want true")
	}
	if u.Has(TextureUsageRenderTarget | TextureUsageCopySrc) {
		t.Error("Has(RenderTarget|CopySrc) = true, want false")
	}
}
