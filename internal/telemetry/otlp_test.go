package telemetry

import (
	"testing"
	"time"
)

func TestParseOTLPLogsExtractsEventAndThreadID(t *testing.T) {
	body := []byte(`{
		"resourceLogs": [{
			"scopeLogs": [{
				"logRecords": [{
					"timeUnixNano": "1700000000000000000",
					"severityText": "INFO",
					"body": {"stringValue": "waiting on user"},
					"attributes": [
						{"key": "event.name", "value": {"stringValue": "needs-input"}},
						{"key": "session_id", "value": {"stringValue": "abc-123"}}
					]
				}]
			}]
		}]
	}`)

	events, err := ParseOTLPLogs(body, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("ParseOTLPLogs: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.EventName != "needs-input" {
		t.Fatalf("EventName = %q", e.EventName)
	}
	if e.ProviderThreadID != "abc-123" {
		t.Fatalf("ProviderThreadID = %q", e.ProviderThreadID)
	}
	if e.StatusHint != StatusHintNeedsInput {
		t.Fatalf("StatusHint = %q, want needs-input", e.StatusHint)
	}
	if e.ObservedAt.Unix() != time.Unix(0, 1700000000000000000).Unix() {
		t.Fatalf("ObservedAt not derived from timeUnixNano: %v", e.ObservedAt)
	}
}

func TestParseOTLPMetricsSumDataPoint(t *testing.T) {
	body := []byte(`{
		"resourceMetrics": [{
			"scopeMetrics": [{
				"metrics": [{
					"name": "codex.input_token_count",
					"sum": {
						"dataPoints": [{
							"timeUnixNano": "1700000000000000000",
							"asInt": "42",
							"attributes": [{"key": "thread_id", "value": {"stringValue": "t-1"}}]
						}]
					}
				}]
			}]
		}]
	}`)

	events, err := ParseOTLPMetrics(body, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("ParseOTLPMetrics: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Payload["metric.value"] != int64(42) {
		t.Fatalf("metric.value = %v", events[0].Payload["metric.value"])
	}
	if events[0].ProviderThreadID != "t-1" {
		t.Fatalf("ProviderThreadID = %q", events[0].ProviderThreadID)
	}
}

func TestParseOTLPTracesSpanKindCompleted(t *testing.T) {
	body := []byte(`{
		"resourceSpans": [{
			"scopeSpans": [{
				"spans": [{
					"name": "codex.sse_event",
					"startTimeUnixNano": "1700000000000000000",
					"endTimeUnixNano": "1700000000500000000",
					"attributes": [{"key": "event.kind", "value": {"stringValue": "response.completed"}}]
				}]
			}]
		}]
	}`)

	events, err := ParseOTLPTraces(body, "sess-1", time.Now())
	if err != nil {
		t.Fatalf("ParseOTLPTraces: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].StatusHint != StatusHintCompleted {
		t.Fatalf("StatusHint = %q, want completed", events[0].StatusHint)
	}
}

func TestFingerprintStableAcrossAttributeOrder(t *testing.T) {
	a := map[string]any{"a": 1, "b": "x"}
	b := map[string]any{"b": "x", "a": 1}
	now := time.Now()
	if fingerprint(SourceOtlpLog, "sess-1", "thread-1", "evt", now, a) != fingerprint(SourceOtlpLog, "sess-1", "thread-1", "evt", now, b) {
		t.Fatalf("fingerprint not stable across map key order")
	}
}

func TestFingerprintDiffersAcrossSessionAndTime(t *testing.T) {
	payload := map[string]any{"a": 1}
	t1 := time.Now()
	t2 := t1.Add(time.Minute)

	base := fingerprint(SourceOtlpLog, "sess-1", "thread-1", "evt", t1, payload)
	if fingerprint(SourceOtlpLog, "sess-2", "thread-1", "evt", t1, payload) == base {
		t.Fatal("fingerprint collided across distinct sessionIds")
	}
	if fingerprint(SourceOtlpLog, "sess-1", "thread-1", "evt", t2, payload) == base {
		t.Fatal("fingerprint collided across distinct observedAt times")
	}
}

func TestFindProviderThreadIDNested(t *testing.T) {
	payload := map[string]any{
		"resource": map[string]any{
			"attributes": []any{
				map[string]any{"conversationId": "deep-1"},
			},
		},
	}
	if got := findProviderThreadID(payload, 0); got != "deep-1" {
		t.Fatalf("findProviderThreadID = %q, want deep-1", got)
	}
}
