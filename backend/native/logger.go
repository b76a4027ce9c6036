package native

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
)

// loggerPtr stores the active logger. Accessed atomically for thread safety.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(backend.NopLogger())
}

// slogger returns the current package logger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger for the native backend.
// Pass nil to restore the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = backend.NopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger of the native backend.
func Logger() *slog.Logger { return slogger() }
