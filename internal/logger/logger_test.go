package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitJSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	Init("debug", "json", &buf)

	ctx := WithContext(context.Background(), BookIDKey, "b-1")
	ctx = WithContext(ctx, ChapterKey, 3)
	FromContext(ctx).Debug("opened")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if line["msg"] != "opened" || line["book_id"] != "b-1" || line["chapter"] != float64(3) {
		t.Errorf("line = %v", line)
	}
}

func TestInitTextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Init("warn", "text", &buf)
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Errorf("output = %q", out)
	}
	if Default() != l {
		t.Error("Default did not return the initialized logger")
	}
}

func TestOpenFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "shelf.log")
	f, err := OpenFile(p)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	Init("info", "text", f).Info("to file")
}
