// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// Module-wide structured logger. Output is discarded until the host
// application installs a handler via SetLogger.

package logging

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Default returns the logger currently installed for the module.
func Default() *slog.Logger {
	return current.Load()
}

// SetLogger installs l as the module logger. A nil l restores the
// discarding logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	current.Store(l)
}
