package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLSinkSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSQLSinkFromDSN(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []Event{
		{Type: EventStart, OccurredAt: time.Now().UTC(), Name: "backend", PID: 4242, State: "running"},
		{Type: EventUnhealthy, OccurredAt: time.Now().UTC(), Name: "backend", PID: 4242, State: "unhealthy", Detail: "3 consecutive failures"},
		{Type: EventStop, OccurredAt: time.Now().UTC(), Name: "backend", State: "stopped"},
		{Type: EventStart, OccurredAt: time.Now().UTC(), Name: "frontend", PID: 4243, State: "running"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	n, err := sink.Count(ctx, "backend")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("backend events = %d, want 3", n)
	}
	n, err = sink.Count(ctx, "frontend")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("frontend events = %d, want 1", n)
	}
}

func TestSQLSinkSQLiteURLPrefix(t *testing.T) {
	sink, err := NewSQLSinkFromDSN("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if sink.dialect != "sqlite" {
		t.Fatalf("dialect = %q", sink.dialect)
	}
}

func TestSQLSinkEmptyDSN(t *testing.T) {
	if _, err := NewSQLSinkFromDSN("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
