package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

var (
	mu      sync.Mutex
	file    *os.File
	enabled bool
	level   = new(slog.LevelVar)
	logger  = slog.New(slog.DiscardHandler)
)

// DefaultPath returns ~/.config/allolib-studio/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "allolib-studio", "debug.log")
}

// Enable starts logging to path (DefaultPath when empty). When alsoStderr is
// set, records are fanned out to stderr as well.
func Enable(path string, alsoStderr bool) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}),
	}
	if alsoStderr {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	file = f
	enabled = true
	logger = slog.New(slogmulti.Fanout(handlers...))
	logger.Info("=== Debug logging started ===", "category", "debug")
	return nil
}

// EnableWriter routes logging to w. Used by tools that log to a terminal.
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	enabled = true
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
	logger = slog.New(slog.DiscardHandler)
}

// SetLevel changes the minimum level for every handler.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps debug/info/warn/error to a slog level (info on anything else).
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger returns the process logger. Components take it as their default.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes a debug-level message under a category
func Log(category, format string, args ...any) {
	Logger().Debug(fmt.Sprintf(format, args...), "category", category)
}

// Warn writes a warning under a category
func Warn(category, format string, args ...any) {
	Logger().Warn(fmt.Sprintf(format, args...), "category", category)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
