package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var Log *slog.Logger

var initMu sync.Mutex

// ParseLevel maps a config level string onto a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "info", "":
		return slog.LevelInfo, true
	default:
		return slog.LevelInfo, false
	}
}

// Init installs a console text logger at the given level.
func Init(level string) {
	InitWriter(level, os.Stdout)
}

// InitWriter installs a text logger writing to w. Tests use it to capture
// output.
func InitWriter(level string, w io.Writer) {
	initMu.Lock()
	defer initMu.Unlock()
	slogLevel, _ := ParseLevel(level)
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel}))
}

// LogConfigSummary logs a multi-item summary under a single event name.
func LogConfigSummary(event string, items []string) {
	if Log == nil {
		return
	}
	Info(event, "summary", strings.Join(items, ", "))
}

func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
