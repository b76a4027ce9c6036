package gfx

import (
	"errors"
	"fmt"
)

// Contract violations. Operations return them wrapped in *ContractError.
var (
	// ErrNoVertexShader is returned when a draw has no vertex shader bound.
	ErrNoVertexShader = errors.New("gfx: no vertex shader bound")

	// ErrNoPixelShader is returned when a draw has no pixel shader bound.
	ErrNoPixelShader = errors.New("gfx: no pixel shader bound")

	// ErrNoRenderTarget is returned when a draw has no render target bound.
	ErrNoRenderTarget = errors.New("gfx: no render target bound")

	// ErrNoVertexBuffer is returned when a draw has no vertex buffer bound.
	ErrNoVertexBuffer = errors.New("gfx: no vertex buffer bound")

	// ErrNoIndexBuffer is returned by DrawIndexed without an index buffer.
	ErrNoIndexBuffer = errors.New("gfx: no index buffer bound")

	// ErrNotRecording is returned when a draw is issued outside a scene.
	ErrNotRecording = errors.New("gfx: not recording a pass")

	// ErrOutOfBounds is returned when a region exceeds a texture.
	ErrOutOfBounds = errors.New("gfx: region out of bounds")

	// ErrClearOutsideTarget is returned by clear-stack calls made while no
	// render target is bound.
	ErrClearOutsideTarget = errors.New("gfx: clear state outside a render target binding")

	// ErrStackEmpty is returned when popping an empty clear or projection stack.
	ErrStackEmpty = errors.New("gfx: stack empty")

	// ErrInvalidSlot is returned for texture or sampler slots out of range.
	ErrInvalidSlot = errors.New("gfx: slot out of range")

	// ErrReleased is returned when a released or destroyed resource is used.
	ErrReleased = errors.New("gfx: resource released")

	// ErrInvalidArgument is returned for malformed descriptions.
	ErrInvalidArgument = errors.New("gfx: invalid argument")

	// ErrClosed is returned by a closed device.
	ErrClosed = errors.New("gfx: device closed")

	// ErrMissingAttribute is wrapped by *AttributeError.
	ErrMissingAttribute = errors.New("gfx: missing vertex attribute")

	// ErrNoDrawable is returned when a surface has no drawable within the
	// frame budget.
	ErrNoDrawable = errors.New("gfx: no drawable available")
)

// ContractError reports an operation invoked with missing or invalid state.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("gfx: %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

func contractErr(op string, err error) error {
	return &ContractError{Op: op, Err: err}
}

// ResourceError reports a failed native allocation.
type ResourceError struct {
	Kind  Kind
	Label string
	Err   error
}

func (e *ResourceError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("gfx: create %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gfx: create %s %q: %v", e.Kind, e.Label, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

func resourceErr(kind Kind, label string, err error) error {
	return &ResourceError{Kind: kind, Label: label, Err: err}
}

// CompileError reports a shader compilation or pipeline derivation failure
// with the native diagnostic.
type CompileError struct {
	Stage ShaderKind
	// Pipeline is set when linking the two stages failed. Stage is
	// meaningless then and File names both shaders.
	Pipeline   bool
	File       string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	if e.Pipeline {
		return fmt.Sprintf("gfx: link pipeline %s: %s", e.File, e.Diagnostic)
	}
	if e.File == "" {
		return fmt.Sprintf("gfx: compile %s shader: %s", e.Stage, e.Diagnostic)
	}
	return fmt.Sprintf("gfx: compile %s shader %s: %s", e.Stage, e.File, e.Diagnostic)
}

func (e *CompileError) Unwrap() error { return e.Err }

// AttributeError reports a vertex stream the shader needs but the vertex
// buffer lacks.
type AttributeError struct {
	Attribute string
	Required  int
	Available int
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("gfx: vertex shader requires %d %s stream(s), buffer has %d",
		e.Required, e.Attribute, e.Available)
}

func (e *AttributeError) Unwrap() error { return ErrMissingAttribute }
