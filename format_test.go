package gfx

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestColorFormat(t *testing.T) {
	tests := []struct {
		f          ColorFormat
		name       string
		bpp        int
		compressed bool
		renderable bool
	}{
		{FormatUnknown, "unknown", 0, false, false},
		{FormatA8, "A8", 1, false, true},
		{FormatRGBA, "RGBA", 4, false, true},
		{FormatBGRA, "BGRA", 4, false, true},
		{FormatR10G10B10A2, "R10G10B10A2", 4, false, true},
		{FormatRGBA16F, "RGBA16F", 8, false, true},
		{FormatRGBA32F, "RGBA32F", 16, false, true},
		{FormatR8G8, "R8G8", 2, false, true},
		{FormatDXT1, "DXT1", 0, true, false},
		{FormatDXT5, "DXT5", 0, true, false},
		{ColorFormat(99), "unknown", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.f.BytesPerPixel(); got != tt.bpp {
				t.Errorf("BytesPerPixel() = %d, want %d", got, tt.bpp)
			}
			if got := tt.f.Compressed(); got != tt.compressed {
				t.Errorf("Compressed() = %v, want %v", got, tt.compressed)
			}
			if got := tt.f.Renderable(); got != tt.renderable {
				t.Errorf("Renderable() = %v, want %v", got, tt.renderable)
			}
		})
	}
}

func TestZStencilFormat(t *testing.T) {
	tests := []struct {
		f       ZStencilFormat
		native  gputypes.TextureFormat
		stencil bool
	}{
		{ZStencilNone, gputypes.TextureFormatUndefined, false},
		{Z16, gputypes.TextureFormatDepth16Unorm, false},
		{Z24S8, gputypes.TextureFormatDepth24PlusStencil8, true},
		{Z32F, gputypes.TextureFormatDepth32Float, false},
		{Z32FS8X24, gputypes.TextureFormatDepth32FloatStencil8, true},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			if got := tt.f.Native(); got != tt.native {
				t.Errorf("Native() = %v, want %v", got, tt.native)
			}
			if got := tt.f.HasStencil(); got != tt.stencil {
				t.Errorf("HasStencil() = %v, want %v", got, tt.stencil)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if got := KindZStencil.String(); got != "ZStencilBuffer" {
		t.Errorf("KindZStencil.String() = %q", got)
	}
	if got := Kind(42).String(); got != "Unknown" {
		t.Errorf("Kind(42).String() = %q", got)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    error
		target error
		text   string
	}{
		{"contract", contractErr("draw", ErrNoVertexShader), ErrNoVertexShader, "gfx: draw:"},
		{"resource", resourceErr(KindTexture, "atlas", cause), cause, `create Texture "atlas"`},
		{"resource unlabeled", resourceErr(KindSampler, "", cause), cause, "create SamplerState: boom"},
		{"compile", &CompileError{Stage: ShaderPixel, File: "a.ps", Diagnostic: "bad", Err: cause}, cause, "pixel shader a.ps: bad"},
		{"link", &CompileError{Pipeline: true, File: "a.vs+a.ps", Diagnostic: "bad", Err: cause}, cause, "link pipeline a.vs+a.ps: bad"},
		{"attribute", &AttributeError{Attribute: "normal", Required: 1}, ErrMissingAttribute, "1 normal stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if !strings.Contains(tt.err.Error(), tt.text) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.text)
			}
		})
	}

	var ce *ContractError
	if !errors.As(contractErr("present", ErrNoRenderTarget), &ce) || ce.Op != "present" {
		t.Error("errors.As did not find *ContractError")
	}
}
