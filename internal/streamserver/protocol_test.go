package streamserver

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAuthOK(t *testing.T) {
	ev := authOK()
	if ev.Type != "auth.ok" {
		t.Fatalf("unexpected type: %s", ev.Type)
	}
}

func TestAuthError(t *testing.T) {
	ev := authError("bad token")
	if ev.Type != "auth.error" || ev.Error != "bad token" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
}

func TestAcceptedCompletedFailed(t *testing.T) {
	if ev := accepted("cmd1"); ev.Type != "command.accepted" || ev.CommandID != "cmd1" {
		t.Fatalf("unexpected accepted envelope: %+v", ev)
	}
	if ev := completed("cmd1", map[string]any{"ok": true}); ev.Type != "command.completed" || ev.CommandID != "cmd1" {
		t.Fatalf("unexpected completed envelope: %+v", ev)
	}
	ev := failed("cmd1", kindNotFound, errors.New("session not found"))
	if ev.Type != "command.failed" || ev.Kind != kindNotFound || ev.Error != "session not found" {
		t.Fatalf("unexpected failed envelope: %+v", ev)
	}
}

func TestStreamEvent_OmitsEmptyFieldsOnWire(t *testing.T) {
	ev := streamEvent("sub1", 7, "session-completed", "s1", map[string]any{"status": "completed"})
	if ev.Type != "stream.event" || ev.SubscriptionID != "sub1" || ev.Cursor != 7 {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if ev.OccurredAt == "" {
		t.Fatalf("expected occurredAt to be populated")
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded["commandId"]; present {
		t.Fatalf("expected omitted empty commandId, got %+v", decoded)
	}
	if _, present := decoded["error"]; present {
		t.Fatalf("expected omitted empty error, got %+v", decoded)
	}
}

func TestInEnvelope_DecodesCommandAndPtyShapes(t *testing.T) {
	var in inEnvelope
	if err := json.Unmarshal([]byte(`{"type":"pty.resize","sessionId":"s1","cols":80,"rows":24}`), &in); err != nil {
		t.Fatalf("unmarshal pty.resize: %v", err)
	}
	if in.Type != "pty.resize" || in.SessionID != "s1" || in.Cols != 80 || in.Rows != 24 {
		t.Fatalf("unexpected decode: %+v", in)
	}

	if err := json.Unmarshal([]byte(`{"type":"command","commandId":"c1","command":{"type":"directory.upsert","body":{}}}`), &in); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	var cmd commandEnvelope
	if err := json.Unmarshal(in.Command, &cmd); err != nil {
		t.Fatalf("unmarshal nested command: %v", err)
	}
	if cmd.Type != "directory.upsert" {
		t.Fatalf("unexpected nested command type: %s", cmd.Type)
	}
}
