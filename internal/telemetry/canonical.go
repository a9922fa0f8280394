package telemetry

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// canonicalize produces a stable JSON encoding of v: map keys are sorted and
// re-marshaled recursively, so the same logical payload always yields the
// same bytes regardless of the source decoder's map iteration order.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, canonicalize(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return t
	}
}

// fingerprint computes a sha1 digest over (source, sessionId,
// providerThreadId, eventName, observedAt, canonical payload), used by the
// Session Coordinator to drop duplicate telemetry deliveries from a retried
// OTLP export or a re-read history line. Including sessionId and observedAt
// keeps two genuinely distinct events that happen to share name and payload
// (different sessions, or the same session at different times) from
// collapsing onto the same fingerprint.
func fingerprint(source Source, sessionID, providerThreadID, eventName string, observedAt time.Time, payload map[string]any) string {
	buf, err := json.Marshal([]any{
		string(source), sessionID, providerThreadID, eventName,
		observedAt.UTC().Format(time.RFC3339Nano), canonicalize(payload),
	})
	if err != nil {
		// Marshal of a map[string]any built entirely from json.Unmarshal output
		// cannot fail; this is unreachable in practice.
		buf = []byte(sessionID + eventName)
	}
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:])
}
