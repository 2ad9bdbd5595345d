package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chainguard-dev/clog"

	"thoreinstein.com/shipwright/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "info"}, true, &buf)
	l.Debug("hello", "k", "v")

	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("debug line missing: %q", buf.String())
	}
}

func TestNew_JSONToFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "shipwright.log")

	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "info", Format: "json", File: file, MaxSizeMB: 1}, false, &buf)
	l.Info("started", "port", 3000)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"started"`) {
		t.Errorf("log file missing JSON record: %q", data)
	}
	if !strings.Contains(buf.String(), `"port":3000`) {
		t.Errorf("stderr missing JSON record: %q", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LoggingConfig{Level: "info"}, false, &buf)

	ctx := l.WithContext(context.Background())
	clog.FromContext(ctx).Info("from context")

	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("context logger did not write: %q", buf.String())
	}
}
