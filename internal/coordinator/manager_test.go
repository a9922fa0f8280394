package coordinator

import (
	"testing"

	"github.com/harborctl/harborctl/internal/telemetry"
)

func TestHandleTelemetryGatesCompletedBySource(t *testing.T) {
	var events []ObservedEvent
	m := NewManager(func(e ObservedEvent) { events = append(events, e) })
	m.Register("sess-1", "codex", 123)

	// An otlp-trace span reporting response.completed must not complete the
	// session on its own: only the codex turn-duration metric, an otlp-log
	// completed summary, or NotifyTail's TurnCompleted may.
	m.HandleTelemetry("sess-1", telemetry.Event{
		Source:     telemetry.SourceOtlpTrace,
		EventName:  "codex.sse_event",
		Summary:    "response.completed",
		StatusHint: telemetry.StatusHintCompleted,
	})
	live, _ := m.Get("sess-1")
	if live.RuntimeStatus != StateRunning {
		t.Fatalf("trace-sourced completed hint moved state to %q, want running", live.RuntimeStatus)
	}

	m.HandleTelemetry("sess-1", telemetry.Event{
		Source:     telemetry.SourceOtlpMetric,
		EventName:  "codex.turn.e2e_duration_ms",
		StatusHint: telemetry.StatusHintCompleted,
	})
	live, _ = m.Get("sess-1")
	if live.RuntimeStatus != StateCompleted {
		t.Fatalf("eligible metric did not complete session: %q", live.RuntimeStatus)
	}
}

func TestHandleTelemetryGatesNeedsInputBySource(t *testing.T) {
	var events []ObservedEvent
	m := NewManager(func(e ObservedEvent) { events = append(events, e) })
	m.Register("sess-1", "codex", 123)

	// A history line can never raise needs-input by itself.
	m.HandleTelemetry("sess-1", telemetry.Event{
		Source:     telemetry.SourceHistory,
		EventName:  "needs-input",
		StatusHint: telemetry.StatusHintNeedsInput,
	})
	live, _ := m.Get("sess-1")
	if live.RuntimeStatus != StateRunning {
		t.Fatalf("history-sourced needs-input hint moved state to %q, want running", live.RuntimeStatus)
	}

	m.HandleTelemetry("sess-1", telemetry.Event{
		Source:     telemetry.SourceOtlpLog,
		EventName:  "needs-input",
		StatusHint: telemetry.StatusHintNeedsInput,
	})
	live, _ = m.Get("sess-1")
	if live.RuntimeStatus != StateNeedsInput {
		t.Fatalf("eligible otlp-log did not raise needs-input: %q", live.RuntimeStatus)
	}
	_ = events
}
