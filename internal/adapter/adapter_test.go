package adapter

import (
	"testing"
	"time"
)

func TestComposeStartArgsPrependsCodexResume(t *testing.T) {
	state := map[string]any{"codex": map[string]any{"resumeSessionId": "sess-9"}}
	args := ComposeStartArgs("codex", []string{"--cd", "/tmp"}, state)
	if len(args) != 4 || args[0] != "resume" || args[1] != "sess-9" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestComposeStartArgsSkipsReservedSubcommand(t *testing.T) {
	state := map[string]any{"codex": map[string]any{"resumeSessionId": "sess-9"}}
	args := ComposeStartArgs("codex", []string{"exec", "ls"}, state)
	if len(args) != 2 || args[0] != "exec" {
		t.Fatalf("expected unchanged reserved-subcommand args, got %+v", args)
	}
}

func TestComposeStartArgsNonCodexUnchanged(t *testing.T) {
	args := ComposeStartArgs("claude", []string{"--resume"}, map[string]any{"codex": map[string]any{"resumeSessionId": "x"}})
	if len(args) != 1 || args[0] != "--resume" {
		t.Fatalf("non-codex agent types must be unaffected, got %+v", args)
	}
}

func TestComposeStartArgsAppendsExtraArgs(t *testing.T) {
	state := map[string]any{"extraArgs": `--model "o3 mini"`}
	args := ComposeStartArgs("claude", []string{"chat"}, state)
	want := []string{"chat", "--model", "o3 mini"}
	if len(args) != len(want) {
		t.Fatalf("got %+v, want %+v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestSplitExtraArgsHandlesQuoting(t *testing.T) {
	args, err := SplitExtraArgs(`--flag "hello world" --other`)
	if err != nil {
		t.Fatalf("SplitExtraArgs: %v", err)
	}
	want := []string{"--flag", "hello world", "--other"}
	if len(args) != len(want) {
		t.Fatalf("got %+v, want %+v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestExtractPromptFromNotifyClaudeHook(t *testing.T) {
	payload := map[string]any{"hook_event_name": "UserPromptSubmit", "prompt": "fix the bug"}
	rec, ok := ExtractPromptFromNotify(payload, time.Unix(1700000000, 0))
	if !ok {
		t.Fatal("expected a recognized prompt shape")
	}
	if rec.Text != "fix the bug" || rec.CaptureSource != "notify-claude-hook" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Hash == "" {
		t.Fatal("expected a non-empty hash")
	}
}

func TestExtractPromptFromTelemetryUnrecognizedEvent(t *testing.T) {
	if _, ok := ExtractPromptFromTelemetry("codex.tool_result", nil, time.Now()); ok {
		t.Fatal("expected unrecognized event to return ok=false")
	}
}
