package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "schema synced",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tschema synced\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "seed row inserted",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tseed row inserted\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "attachment stored",
			attrs:   []slog.Attr{slog.String("key", "a1b2.png"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tattachment stored\tkey=a1b2.png\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &logHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLogHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &logHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("entity", "replies")}).(*logHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "insert", 0)
	r.AddAttrs(slog.Int64("id", 3))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "entity=replies") {
		t.Errorf("expected pre-set attr entity=replies, got: %q", got)
	}
	if !strings.Contains(got, "id=3") {
		t.Errorf("expected record attr id=3, got: %q", got)
	}
}

func TestLogHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &logHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*logHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestLogHandler_Enabled(t *testing.T) {
	levels := []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

	t.Run("no level enables everything", func(t *testing.T) {
		h := &logHandler{}
		for _, level := range levels {
			if !h.Enabled(context.Background(), level) {
				t.Errorf("Enabled(%v) = false, want true", level)
			}
		}
	})

	t.Run("minimum level", func(t *testing.T) {
		h := &logHandler{level: slog.LevelWarn}
		for _, level := range levels {
			want := level >= slog.LevelWarn
			if got := h.Enabled(context.Background(), level); got != want {
				t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
			}
		}
	})
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, f, err := newLogger(dir, "test-op", &console, slog.LevelInfo)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Debug("detail", "step", "profile")
	logger.Info("seed complete")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "cultivate.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	file := string(data)
	if !strings.Contains(file, "\tDEBUG\ttest-op\tdetail\tstep=profile") {
		t.Errorf("log file missing debug record: %q", file)
	}
	if !strings.Contains(file, "\tINFO\ttest-op\tseed complete") {
		t.Errorf("log file missing info record: %q", file)
	}

	if strings.Contains(console.String(), "detail") {
		t.Errorf("console received debug record: %q", console.String())
	}
	if !strings.Contains(console.String(), "seed complete") {
		t.Errorf("console missing info record: %q", console.String())
	}
}
