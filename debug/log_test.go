package debug

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnableWritesCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	if err := Enable(path, false); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer Disable()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	Log("transport", "play at %.2f", 1.5)
	Warn("command", "dropped")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	for _, want := range []string{"play at 1.50", "category=transport", "level=WARN", "dropped"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestDisabledLoggerDiscards(t *testing.T) {
	Disable()
	// Must not panic or write anywhere.
	Log("x", "nothing %d", 1)
	Warn("x", "nothing")
}

func TestEnableWriterAndLogEvery(t *testing.T) {
	var buf bytes.Buffer
	EnableWriter(&buf)
	defer Disable()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	for i := 0; i < 6; i++ {
		LogEvery(3, "frame", "tick")
	}
	if got := strings.Count(buf.String(), "tick (every 3"); got != 2 {
		t.Fatalf("LogEvery wrote %d lines, want 2:\n%s", got, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
