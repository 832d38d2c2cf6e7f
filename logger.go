package gfx2d

import (
	"log/slog"

	"github.com/gogpu/gfx2d/backend"
)

// SetLogger configures the logger for gfx2d and all its sub-packages.
// By default, gfx2d produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gfx2d:
//   - [slog.LevelDebug]: per-frame diagnostics (pipelines built, resizes)
//   - [slog.LevelInfo]: lifecycle events (backend selected, device ready)
//   - [slog.LevelWarn]: non-fatal issues (skipped draws, surface recreation,
//     missing textures)
//
// Example:
//
//	gfx2d.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	backend.SetLogger(l)
}

// Logger returns the current logger used by gfx2d.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return backend.Logger()
}
