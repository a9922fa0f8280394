// Package activitylog implements a structured per-session activity log: an
// append-only JSONL audit trail of hook events, permission decisions, OTEL
// connectivity/metrics, and state transitions, one JSON object per line
// with a leading ts field. Mirrors the append-and-forget JSONL writers used
// elsewhere in this codebase (the notify hook log, metrics files).
package activitylog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends activity records to a JSONL file. A disabled or Nop
// Logger discards every call without creating a file.
type Logger struct {
	mu        sync.Mutex
	f         *os.File
	actor     string
	sessionID string
}

// New opens (creating if necessary) the activity log at path. When enabled
// is false, New returns a Logger whose methods are no-ops and that never
// touches the filesystem.
func New(enabled bool, path, actor, sessionID string) *Logger {
	if !enabled {
		return &Logger{actor: actor, sessionID: sessionID}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Logger{actor: actor, sessionID: sessionID}
	}
	return &Logger{f: f, actor: actor, sessionID: sessionID}
}

// Nop returns a Logger that discards every call. Safe for nil receivers
// further down the chain since it still has valid (zero) fields.
func Nop() *Logger {
	return &Logger{}
}

// HookEvent records a provider lifecycle hook firing (e.g. PreToolUse,
// SessionStart). toolName is omitted from the record when empty.
func (l *Logger) HookEvent(event, toolName string) {
	rec := map[string]any{
		"event":      "hook",
		"hook_event": event,
	}
	if toolName != "" {
		rec["tool_name"] = toolName
	}
	l.write(rec)
}

// PermissionDecision records a tool-use permission prompt's outcome.
func (l *Logger) PermissionDecision(toolName, decision, reason string) {
	l.write(map[string]any{
		"event":     "permission_decision",
		"tool_name": toolName,
		"decision":  decision,
		"reason":    reason,
	})
}

// OtelMetrics records a token/cost usage sample observed via the telemetry
// ingest server.
func (l *Logger) OtelMetrics(inputTokens, outputTokens int64, costUSD float64) {
	l.write(map[string]any{
		"event":         "otel_metrics",
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"cost_usd":      costUSD,
	})
}

// OtelConnected records that the telemetry ingest server accepted a
// connection on the given endpoint path.
func (l *Logger) OtelConnected(endpoint string) {
	l.write(map[string]any{
		"event":    "otel_connected",
		"endpoint": endpoint,
	})
}

// Event records an arbitrary operationally significant action (PTY spawn/
// exit, controller claim/release, store mutation, legacy migration) that
// doesn't fit one of the more specific record shapes above. fields is
// merged into the record alongside the fixed event/ts/actor/session_id
// keys; event wins if fields also sets "event".
func (l *Logger) Event(event string, fields map[string]any) {
	rec := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec["event"] = event
	l.write(rec)
}

// StateChange records a session lifecycle-state transition.
func (l *Logger) StateChange(from, to string) {
	l.write(map[string]any{
		"event": "state_change",
		"from":  from,
		"to":    to,
	})
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func (l *Logger) write(rec map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	rec["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["actor"] = l.actor
	rec["session_id"] = l.sessionID

	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = l.f.Write(line)
}
