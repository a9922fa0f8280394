// Package telemetry implements the Telemetry Ingest component: it parses
// OTLP JSON logs/metrics/traces and history JSONL into a uniform Event,
// deriving status hints, provider thread ids, and a dedup fingerprint.
package telemetry

import "time"

// Source identifies which side channel produced an Event.
type Source string

const (
	SourceOtlpLog    Source = "otlp-log"
	SourceOtlpMetric Source = "otlp-metric"
	SourceOtlpTrace  Source = "otlp-trace"
	SourceHistory    Source = "history"
)

// StatusHint is a coarse lifecycle signal the Session Coordinator
// reconciles into the session state machine.
type StatusHint string

const (
	StatusHintNeedsInput StatusHint = "needs-input"
	StatusHintCompleted  StatusHint = "completed"
	StatusHintRunning    StatusHint = "running"
)

// Event is the uniform shape every telemetry source is normalized into.
type Event struct {
	Source           Source
	ObservedAt       time.Time
	EventName        string // "" means absent/null on the wire
	Severity         string
	Summary          string
	ProviderThreadID string
	StatusHint       StatusHint // "" means no hint derived
	Payload          map[string]any
	Fingerprint      string
}
