// Package adapter implements the Agent Adapter Layer: per-agent-type
// start-argument composition and prompt extraction from notify/telemetry
// side channels.
package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/shlex"
)

// Confidence grades how certain a SessionPromptRecord's text extraction is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// SessionPromptRecord is the uniform shape ExtractPromptFromNotify and
// ExtractPromptFromTelemetry produce.
type SessionPromptRecord struct {
	Text             string
	Hash             string
	Confidence       Confidence
	CaptureSource    string
	ProviderEventName string
	ObservedAt       string
}

// reservedCodexSubcommands must not have "resume" prepended ahead of them.
var reservedCodexSubcommands = map[string]bool{
	"exec": true, "review": true, "login": true, "logout": true,
	"resume": true, "fork": true, "apply": true, "mcp": true,
}

// ComposeStartArgs builds the child argv for agentType from baseArgs and
// adapterState. codex prepends a resume subcommand when adapterState names
// a prior session to resume; every agent type then has adapterState's
// shell-quoted extraArgs string split and appended, letting a caller pass
// through flags the harness itself doesn't model (e.g. "--model o3").
func ComposeStartArgs(agentType string, baseArgs []string, adapterState map[string]any) []string {
	args := baseArgs
	if agentType == "codex" && !(len(args) > 0 && reservedCodexSubcommands[args[0]]) {
		if resumeID := resumeSessionID(adapterState); resumeID != "" {
			resumed := make([]string, 0, len(args)+2)
			resumed = append(resumed, "resume", resumeID)
			args = append(resumed, args...)
		}
	}
	if extra, _ := adapterState["extraArgs"].(string); extra != "" {
		if split, err := SplitExtraArgs(extra); err == nil {
			args = append(args, split...)
		}
	}
	return args
}

func resumeSessionID(adapterState map[string]any) string {
	codex, _ := adapterState["codex"].(map[string]any)
	if codex != nil {
		if id, ok := codex["resumeSessionId"].(string); ok && id != "" {
			return id
		}
		if id, ok := codex["threadId"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// OTLPEnv builds the environment variables that point a launched agent's own
// OTEL exporter at the per-session telemetry ingest server bound to
// 127.0.0.1:otlpPort. Claude and cursor get the full OTEL_EXPORTER_OTLP_*
// set; codex gets only CODEX_OTLP_ENDPOINT, pointing at the /v1/logs route.
func OTLPEnv(agentType string, otlpPort int) map[string]string {
	endpoint := fmt.Sprintf("http://127.0.0.1:%d", otlpPort)
	switch agentType {
	case "claude", "cursor":
		return map[string]string{
			"OTEL_METRICS_EXPORTER":       "otlp",
			"OTEL_LOGS_EXPORTER":          "otlp",
			"OTEL_TRACES_EXPORTER":        "none",
			"OTEL_EXPORTER_OTLP_PROTOCOL": "http/json",
			"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint,
			"OTEL_METRIC_EXPORT_INTERVAL": "5000",
			"OTEL_LOGS_EXPORT_INTERVAL":   "1000",
		}
	case "codex":
		return map[string]string{
			"CODEX_OTLP_ENDPOINT": endpoint + "/v1/logs",
		}
	default:
		return map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": endpoint}
	}
}

// SplitExtraArgs splits a free-form extra-argument string carried in
// adapterState (e.g. adapterState.extraArgs) the way a shell would, so it
// can be appended to the child argv (grounded on internal/bridge/exec.go's
// use of shlex for whitelisted command execution).
func SplitExtraArgs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	return shlex.Split(raw)
}

// hashPromptRecord computes sha256(providerEventName + text + canonical(payload)).
func hashPromptRecord(providerEventName, text string, payload map[string]any) string {
	canon, _ := json.Marshal(canonicalize(payload))
	h := sha256.New()
	h.Write([]byte(providerEventName))
	h.Write([]byte(text))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}
