package gfx

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
)

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(backend.NopLogger())
}

// SetLogger configures the logger for gfx and the backend registry.
// By default, gfx produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default. Devices opened later inherit the logger; devices already open
// keep the one they were created with unless WithLogger overrides it.
//
// Log levels used by gfx:
//   - [slog.LevelDebug]: resource creation, pipeline derivation, buffer generations
//   - [slog.LevelInfo]: device open/close and device-loss sweeps
//   - [slog.LevelWarn]: resources that failed to rebuild
//
// Example:
//
//	gfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = backend.NopLogger()
	}
	loggerPtr.Store(l)
	backend.SetLogger(l)
}

// Logger returns the current package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// propagateLogger passes the logger to a backend device if it accepts one.
func propagateLogger(dev backend.Device, l *slog.Logger) {
	if ls, ok := dev.(backend.LoggerSetter); ok {
		ls.SetLogger(l)
	}
}
