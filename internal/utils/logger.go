package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a slog.Logger writing to stdout with the desired
// verbosity and format.
func NewLogger(level string, jsonFormat bool) *slog.Logger {
	return NewLoggerTo(os.Stdout, level, jsonFormat)
}

// NewLoggerTo returns a slog.Logger writing to w.
func NewLoggerTo(w io.Writer, level string, jsonFormat bool) *slog.Logger {
	handlerLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: handlerLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: handlerLevel})
	}

	return slog.New(handler)
}

// RotatingWriter returns a size-rotated log file writer.
func RotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
}
