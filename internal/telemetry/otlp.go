package telemetry

import (
	"encoding/json"
	"strconv"
	"time"
)

// The otlp* types below mirror the OTLP JSON wire shapes resourceLogs,
// resourceMetrics, and resourceSpans use, decoded through one shared
// decoder regardless of which agent's exporter produced them.

type otlpAttrValue struct {
	StringValue string          `json:"stringValue"`
	IntValue    json.RawMessage `json:"intValue"`
	DoubleValue json.RawMessage `json:"doubleValue"`
	BoolValue   *bool           `json:"boolValue"`
}

func (v otlpAttrValue) asAny() any {
	if v.StringValue != "" {
		return v.StringValue
	}
	if len(v.IntValue) > 0 {
		if n, err := strconv.ParseInt(trimQuotes(string(v.IntValue)), 10, 64); err == nil {
			return n
		}
	}
	if len(v.DoubleValue) > 0 {
		if f, err := strconv.ParseFloat(trimQuotes(string(v.DoubleValue)), 64); err == nil {
			return f
		}
	}
	if v.BoolValue != nil {
		return *v.BoolValue
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

type otlpAttribute struct {
	Key   string        `json:"key"`
	Value otlpAttrValue `json:"value"`
}

func attrsToMap(attrs []otlpAttribute) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.asAny()
	}
	return m
}

func attrString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

type otlpLogRecord struct {
	TimeUnixNano         string          `json:"timeUnixNano"`
	ObservedTimeUnixNano string          `json:"observedTimeUnixNano"`
	SeverityText         string          `json:"severityText"`
	Body                 otlpAttrValue   `json:"body"`
	Attributes           []otlpAttribute `json:"attributes"`
}

type otlpScopeLogs struct {
	LogRecords []otlpLogRecord `json:"logRecords"`
}

type otlpResourceLogs struct {
	ScopeLogs []otlpScopeLogs `json:"scopeLogs"`
}

type otlpLogsPayload struct {
	ResourceLogs []otlpResourceLogs `json:"resourceLogs"`
}

// ParseOTLPLogs decodes an OTLP JSON logs export into uniform Events
// stamped with sessionID.
func ParseOTLPLogs(body []byte, sessionID string, receivedAt time.Time) ([]Event, error) {
	var payload otlpLogsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var events []Event
	for _, rl := range payload.ResourceLogs {
		for _, sl := range rl.ScopeLogs {
			for _, rec := range sl.LogRecords {
				attrs := attrsToMap(rec.Attributes)
				eventName := attrString(attrs, "event.name")
				summary, _ := rec.Body.asAny().(string)
				e := Event{
					Source:           SourceOtlpLog,
					ObservedAt:       otlpTimestamp(rec.ObservedTimeUnixNano, rec.TimeUnixNano, receivedAt),
					EventName:        eventName,
					Severity:         rec.SeverityText,
					Summary:          summary,
					ProviderThreadID: findProviderThreadID(attrs, 0),
					Payload:          attrs,
				}
				e.StatusHint = deriveStatusHint(e.EventName, e.Summary)
				e.Fingerprint = fingerprint(e.Source, sessionID, e.ProviderThreadID, e.EventName, e.ObservedAt, e.Payload)
				events = append(events, e)
			}
		}
	}
	return events, nil
}

type otlpMetricDataPoint struct {
	TimeUnixNano string          `json:"timeUnixNano"`
	AsInt        json.RawMessage `json:"asInt"`
	AsDouble     json.RawMessage `json:"asDouble"`
	Attributes   []otlpAttribute `json:"attributes"`
}

type otlpMetric struct {
	Name string `json:"name"`
	Sum  *struct {
		DataPoints []otlpMetricDataPoint `json:"dataPoints"`
	} `json:"sum"`
	Gauge *struct {
		DataPoints []otlpMetricDataPoint `json:"dataPoints"`
	} `json:"gauge"`
}

type otlpScopeMetrics struct {
	Metrics []otlpMetric `json:"metrics"`
}

type otlpResourceMetrics struct {
	ScopeMetrics []otlpScopeMetrics `json:"scopeMetrics"`
}

type otlpMetricsPayload struct {
	ResourceMetrics []otlpResourceMetrics `json:"resourceMetrics"`
}

// ParseOTLPMetrics decodes an OTLP JSON metrics export into uniform Events,
// one per data point, stamped with sessionID.
func ParseOTLPMetrics(body []byte, sessionID string, receivedAt time.Time) ([]Event, error) {
	var payload otlpMetricsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var events []Event
	for _, rm := range payload.ResourceMetrics {
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				var points []otlpMetricDataPoint
				if metric.Sum != nil {
					points = append(points, metric.Sum.DataPoints...)
				}
				if metric.Gauge != nil {
					points = append(points, metric.Gauge.DataPoints...)
				}
				for _, dp := range points {
					attrs := attrsToMap(dp.Attributes)
					attrs["metric.value"] = metricValue(dp)
					e := Event{
						Source:           SourceOtlpMetric,
						ObservedAt:       otlpTimestamp(dp.TimeUnixNano, "", receivedAt),
						EventName:        metric.Name,
						ProviderThreadID: findProviderThreadID(attrs, 0),
						Payload:          attrs,
					}
					e.StatusHint = deriveStatusHint(e.EventName, "")
					if e.StatusHint == "" && e.EventName == "codex.turn.e2e_duration_ms" {
						e.StatusHint = StatusHintCompleted
					}
					e.Fingerprint = fingerprint(e.Source, sessionID, e.ProviderThreadID, e.EventName, e.ObservedAt, e.Payload)
					events = append(events, e)
				}
			}
		}
	}
	return events, nil
}

func metricValue(dp otlpMetricDataPoint) any {
	if len(dp.AsInt) > 0 {
		if n, err := strconv.ParseInt(trimQuotes(string(dp.AsInt)), 10, 64); err == nil {
			return n
		}
	}
	if len(dp.AsDouble) > 0 {
		if f, err := strconv.ParseFloat(trimQuotes(string(dp.AsDouble)), 64); err == nil {
			return f
		}
	}
	return nil
}

type otlpSpan struct {
	Name       string          `json:"name"`
	StartTime  string          `json:"startTimeUnixNano"`
	EndTime    string          `json:"endTimeUnixNano"`
	Attributes []otlpAttribute `json:"attributes"`
}

type otlpScopeSpans struct {
	Spans []otlpSpan `json:"spans"`
}

type otlpResourceSpans struct {
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpTracesPayload struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

// ParseOTLPTraces decodes an OTLP JSON traces export into uniform Events,
// one per span, stamped with sessionID.
func ParseOTLPTraces(body []byte, sessionID string, receivedAt time.Time) ([]Event, error) {
	var payload otlpTracesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var events []Event
	for _, rs := range payload.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				attrs := attrsToMap(span.Attributes)
				summary := attrString(attrs, "event.kind")
				e := Event{
					Source:           SourceOtlpTrace,
					ObservedAt:       otlpTimestamp(span.EndTime, span.StartTime, receivedAt),
					EventName:        span.Name,
					Summary:          summary,
					ProviderThreadID: findProviderThreadID(attrs, 0),
					Payload:          attrs,
				}
				e.StatusHint = deriveStatusHint(e.EventName, e.Summary)
				e.Fingerprint = fingerprint(e.Source, sessionID, e.ProviderThreadID, e.EventName, e.ObservedAt, e.Payload)
				events = append(events, e)
			}
		}
	}
	return events, nil
}

// otlpTimestamp parses a unix-nano string field (observed preferred over
// emitted, matching OTLP's own semantics for which time is authoritative),
// falling back to receivedAt when absent or malformed.
func otlpTimestamp(observed, emitted string, receivedAt time.Time) time.Time {
	if t, ok := parseUnixNano(observed); ok {
		return t
	}
	if t, ok := parseUnixNano(emitted); ok {
		return t
	}
	return receivedAt
}

func parseUnixNano(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}
