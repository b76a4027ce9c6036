package gfx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/backend/software"
)

func newBufferLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger enabled for %v", level)
		}
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) left a nil logger")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) logger is enabled")
	}
}

// loggingDevice records the logger handed to a backend device.
type loggingDevice struct {
	*software.Device
	logger *slog.Logger
}

func (d *loggingDevice) SetLogger(l *slog.Logger) { d.logger = l }

func TestNewDevicePropagatesLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	custom, _ := newBufferLogger(slog.LevelInfo)
	SetLogger(custom)

	bd := &loggingDevice{Device: software.NewDevice(backend.Config{})}
	dev, err := NewDevice(WithBackend(bd))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })

	if bd.logger != custom {
		t.Error("NewDevice did not pass the package logger to the backend")
	}
}

func TestWithLoggerOverridesPackageLogger(t *testing.T) {
	custom, buf := newBufferLogger(slog.LevelDebug)

	bd := &loggingDevice{Device: software.NewDevice(backend.Config{})}
	dev, err := NewDevice(WithBackend(bd), WithLogger(custom))
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })

	if bd.logger != custom {
		t.Error("WithLogger was not passed to the backend device")
	}
	if !strings.Contains(buf.String(), "device opened") {
		t.Errorf("log = %q, want device open message", buf.String())
	}
}

func TestResourceCreationLoggedAtDebug(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, true},
		{slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			l, buf := newBufferLogger(tt.level)
			dev, _ := newTestDevice(t, WithLogger(l))
			vb, err := dev.CreateVertexBuffer("quad", lowerLeftTriangle(), false)
			if err != nil {
				t.Fatalf("CreateVertexBuffer() error = %v", err)
			}
			defer vb.Destroy()
			if got := strings.Contains(buf.String(), "vertex buffer created"); got != tt.want {
				t.Errorf("creation logged = %v, want %v; log = %q", got, tt.want, buf.String())
			}
		})
	}
}

func TestDeviceLossSweepLogged(t *testing.T) {
	l, buf := newBufferLogger(slog.LevelInfo)
	dev, _ := newTestDevice(t, WithLogger(l), WithFrameTimeout(time.Second))
	newRenderTarget(t, dev, 2, 2)

	dev.ReleaseAll()
	if err := dev.RebuildAll(); err != nil {
		t.Fatalf("RebuildAll() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"releasing device objects", "rebuilding device objects", "objects=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q; log = %q", want, out)
		}
	}
}
