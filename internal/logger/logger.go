// Package logger builds the run-scoped slog logger from configuration. The
// logger is constructed once and passed into components explicitly; no
// package keeps global logging state.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"candlearchiver/internal/config"
)

// New creates a logger per the configured level, format, and output. The
// returned closer releases the log file when output is file-based.
func New(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	writer, closer, err := newWriter(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.LogLevel),
		AddSource: cfg.LogLevel == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler).With(slog.String("service", "candlearchiver")), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newWriter(cfg *config.Config) (io.Writer, io.Closer, error) {
	switch cfg.LogOutput {
	case "stderr":
		return os.Stderr, nopCloser{}, nil
	case "file":
		if cfg.LogFilePath == "" {
			return nil, nil, fmt.Errorf("log file path is required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		return lj, lj, nil
	default:
		return os.Stdout, nopCloser{}, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
