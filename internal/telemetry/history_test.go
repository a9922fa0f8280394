package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryTailerReplaysAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"turn_completed","summary":"done"}`+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tailer := NewHistoryTailer(path, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events := make(chan Event, 8)
	go tailer.Run(ctx, func(e Event) { events <- e })

	select {
	case e := <-events:
		if e.EventName != "turn_completed" {
			t.Fatalf("EventName = %q", e.EventName)
		}
		if e.StatusHint != StatusHintCompleted {
			t.Fatalf("StatusHint = %q, want completed", e.StatusHint)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for first history event")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"type":"needs_input"}` + "\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	select {
	case e := <-events:
		if e.EventName != "needs_input" {
			t.Fatalf("EventName = %q", e.EventName)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for second history event")
	}
}

func TestHistoryTailerWaitsForFileToAppear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	tailer := NewHistoryTailer(path, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events := make(chan Event, 1)
	go tailer.Run(ctx, func(e Event) { events <- e })

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"type":"x"}`+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case e := <-events:
		if e.EventName != "x" {
			t.Fatalf("EventName = %q", e.EventName)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event after file appeared")
	}
}

func TestParseHistoryLineDropsMalformed(t *testing.T) {
	if _, ok := parseHistoryLine([]byte("not json"), "sess-1"); ok {
		t.Fatal("expected malformed line to be dropped")
	}
}
