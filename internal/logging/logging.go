// Package logging sends the structured log to a rotated file in the cache
// dir. The terminal belongs to the UI, so nothing goes to stdout.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel understands debug, info, warn and error. Anything else is info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Setup installs the default logger writing to <dir>/texase.log. The
// returned closer flushes the file.
func Setup(dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "texase.log"),
		MaxSize:    5, // MB
		MaxBackups: 3,
		MaxAge:     28,
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(os.Getenv("TEXASE_LOG_LEVEL"))})
	slog.SetDefault(slog.New(h))
	return w, nil
}
