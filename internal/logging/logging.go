// v1
// internal/logging/logging.go
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

// Init configures slog to log to both stdout and the given file. It returns
// the logger and a closer to run on shutdown. If the file cannot be opened
// the logger falls back to stdout only and the closer is a no-op.
func Init(path string) (*slog.Logger, func()) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		logger.Error("failed to open log file; falling back to stdout only",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return logger, func() {}
	}

	mw := io.MultiWriter(f, os.Stdout)
	logger := slog.New(slog.NewTextHandler(mw, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// make legacy stdlib log align to our multi-writer too
	log.SetOutput(mw)
	return logger, func() { _ = f.Close() }
}
