package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestColorTextHandlerShowTime(t *testing.T) {
	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "ready", 0)

	var with bytes.Buffer
	if err := NewColorTextHandler(&with, nil, true).Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(with.String(), "time=") {
		t.Fatalf("timestamp missing: %q", with.String())
	}

	var without bytes.Buffer
	if err := NewColorTextHandler(&without, nil, false).Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.Contains(without.String(), "time=") {
		t.Fatalf("timestamp not suppressed: %q", without.String())
	}
}

func TestColorTextHandlerColorsLevel(t *testing.T) {
	cases := []struct {
		level slog.Level
		color string
	}{
		{slog.LevelDebug, "\033[36m"},
		{slog.LevelInfo, "\033[32m"},
		{slog.LevelWarn, "\033[33m"},
		{slog.LevelError, "\033[31m"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
		rec := slog.NewRecord(time.Time{}, tc.level, "msg", 0)
		if err := h.Handle(context.Background(), rec); err != nil {
			t.Fatalf("handle %v: %v", tc.level, err)
		}
		if !strings.Contains(buf.String(), tc.color) {
			t.Fatalf("level %v missing color %q in %q", tc.level, tc.color, buf.String())
		}
	}
}
