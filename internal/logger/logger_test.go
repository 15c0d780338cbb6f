package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"fail", LevelFail},
		{"WARN", LevelWarn},
		{"garbage", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandlerFormat(t *testing.T) {
	var buf strings.Builder
	log := slog.New(NewHandler(&buf, LevelInfo))

	log.Info("session restored", "user", "asha", "status", "active")

	line := buf.String()
	if !strings.Contains(line, "[INFO] session restored | user=asha, status=active") {
		t.Errorf("line = %q", line)
	}
	// Timestamp prefix: 2006-01-02T15:04:05.000Z
	if len(line) < 24 || line[4] != '-' || line[10] != 'T' || line[23] != 'Z' {
		t.Errorf("timestamp prefix malformed: %q", line)
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf strings.Builder
	log := slog.New(NewHandler(&buf, LevelWarn))

	log.Info("suppressed")
	log.Warn("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info record not filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] emitted") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestHandlerCustomLevels(t *testing.T) {
	var buf strings.Builder
	log := slog.New(NewHandler(&buf, LevelTrace))

	Trace(log, "deep detail")
	Fail(log, "unrecoverable")

	out := buf.String()
	if !strings.Contains(out, "[TRACE] deep detail") {
		t.Errorf("trace line missing: %q", out)
	}
	if !strings.Contains(out, "[FAIL] unrecoverable") {
		t.Errorf("fail line missing: %q", out)
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	var buf strings.Builder
	base := NewHandler(&buf, LevelInfo)

	withAttrs := base.WithAttrs([]slog.Attr{slog.String("component", "slack")})
	grouped := withAttrs.WithGroup("rtm")
	slog.New(grouped).Info("connected", "attempt", 3)

	out := buf.String()
	if !strings.Contains(out, "rtm.component=slack") {
		t.Errorf("pre-applied attr missing group prefix: %q", out)
	}
	if !strings.Contains(out, "rtm.attempt=3") {
		t.Errorf("record attr missing group prefix: %q", out)
	}

	// The base handler is unchanged.
	if grouped.(*Handler) == base {
		t.Error("WithGroup returned the receiver")
	}
}

func TestHandlerEnabled(t *testing.T) {
	h := NewHandler(&strings.Builder{}, LevelInfo)
	if h.Enabled(context.Background(), LevelDebug) {
		t.Error("debug enabled at info level")
	}
	if !h.Enabled(context.Background(), LevelFail) {
		t.Error("fail not enabled at info level")
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	log, closer, err := NewLogger(path, LevelInfo, 1)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Info("daemon starting", "version", "test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] daemon starting | version=test") {
		t.Errorf("log file content = %q", data)
	}
}
