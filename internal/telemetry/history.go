package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"
)

// HistoryTailer watches an agent's own session/conversation history JSONL
// file and emits one Event per complete line, distinct from the Notify Tail
// component (internal/notifytail), which watches a different file entirely.
// It polls for the file to appear, then reads with partial-line carryover
// across polls so a line split across two reads is never emitted
// truncated.
type HistoryTailer struct {
	Path         string
	PollInterval time.Duration
	// SessionID stamps every emitted Event's dedup fingerprint; the Stream
	// Server sets it to the session the tailer was started for.
	SessionID string
}

// NewHistoryTailer returns a tailer for path with the given poll interval
// (0 means 500ms).
func NewHistoryTailer(path string, pollInterval time.Duration) *HistoryTailer {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &HistoryTailer{Path: path, PollInterval: pollInterval}
}

// Run blocks until ctx is done, delivering one Event per well-formed history
// line via onEvent. Malformed lines are dropped silently, matching the
// other JSONL side channels: lines this parser cannot interpret are
// dropped, not fatal.
func (t *HistoryTailer) Run(ctx context.Context, onEvent func(Event)) error {
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	var f *os.File
	for f == nil {
		opened, err := os.Open(t.Path)
		if err == nil {
			f = opened
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var pending []byte
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			pending = append(pending, line...)
		}
		if err == nil {
			if e, ok := parseHistoryLine(pending, t.SessionID); ok {
				onEvent(e)
			}
			pending = nil
			continue
		}
		if err != io.EOF {
			return err
		}
		// Partial (or no) line at EOF: wait for more data to be appended and
		// keep reading from the same reader, preserving whatever was read so
		// far in pending so the line is never split across deliveries.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseHistoryLine(line []byte, sessionID string) (Event, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, false
	}
	eventName := attrString(raw, "type")
	summary := attrString(raw, "summary")
	e := Event{
		Source:           SourceHistory,
		ObservedAt:       time.Now().UTC(),
		EventName:        eventName,
		Summary:          summary,
		ProviderThreadID: findProviderThreadID(raw, 0),
		Payload:          raw,
	}
	e.StatusHint = deriveStatusHint(e.EventName, e.Summary)
	e.Fingerprint = fingerprint(e.Source, sessionID, e.ProviderThreadID, e.EventName, e.ObservedAt, e.Payload)
	return e, true
}
