package telemetry

import "strings"

const maxThreadIDScanDepth = 4

// threadIDKey reports whether key looks like a thread/session/conversation
// id field, matching case-insensitively and tolerating "-"/"_" separators
// (e.g. "threadId", "conversation_id", "SessionID").
func threadIDKey(key string) bool {
	k := strings.ToLower(key)
	k = strings.ReplaceAll(k, "-", "")
	k = strings.ReplaceAll(k, "_", "")
	for _, stem := range []string{"threadid", "sessionid", "conversationid"} {
		if k == stem {
			return true
		}
	}
	return false
}

// findProviderThreadID recursively scans an attribute/payload tree for the
// first non-empty thread/session/conversation id. Depth is
// capped at maxThreadIDScanDepth to bound the search over arbitrarily nested
// provider payloads. Map iteration order is not guaranteed stable upstream,
// but in practice each OTLP attribute list carries at most one such key, so
// "first" is unambiguous for real payloads.
func findProviderThreadID(v any, depth int) string {
	if depth > maxThreadIDScanDepth {
		return ""
	}
	switch t := v.(type) {
	case map[string]any:
		for key, val := range t {
			if threadIDKey(key) {
				if s, ok := val.(string); ok && s != "" {
					return s
				}
			}
		}
		for _, val := range t {
			if id := findProviderThreadID(val, depth+1); id != "" {
				return id
			}
		}
	case []any:
		for _, item := range t {
			if id := findProviderThreadID(item, depth+1); id != "" {
				return id
			}
		}
	}
	return ""
}
