package adapter

import "sort"

// canonicalize produces a stable ordering of a decoded JSON tree so hashing
// it is independent of map iteration order (mirrors internal/telemetry's
// canonicalize — kept local to avoid a cross-package dependency for one
// small helper).
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
