package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	if New(Config{}) == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "text format",
			cfg:  Config{Level: slog.LevelDebug},
			want: []string{"hello", "key=value"},
		},
		{
			name: "json format",
			cfg:  Config{Level: slog.LevelInfo, JSON: true},
			want: []string{`"msg":"hello"`, `"key":"value"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.cfg)
			logger.Info("hello", "key", "value")

			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q, got: %s", want, out)
				}
			}
		})
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Debug("filtered out")
	logger.Info("kept")

	out := buf.String()
	if strings.Contains(out, "filtered out") {
		t.Error("DEBUG message should be filtered at INFO level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("INFO message should appear")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.With("component", "engine").Info("component log")

	if out := buf.String(); !strings.Contains(out, "component=engine") {
		t.Errorf("expected output to contain 'component=engine', got: %s", out)
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop() returned nil")
	}
	logger.Info("discarded")
	logger.Error("discarded too")
}
