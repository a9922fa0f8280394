package adapter

import "time"

// ExtractPromptFromNotify maps a decoded notify payload into a
// SessionPromptRecord: Claude prompts come from hook notify events with
// hook_event_name == "UserPromptSubmit"; Cursor from "beforeSubmitPrompt".
// Returns ok=false when payload doesn't carry a recognizable
// prompt-submission shape.
func ExtractPromptFromNotify(payload map[string]any, observedAt time.Time) (SessionPromptRecord, bool) {
	hookEvent, _ := payload["hook_event_name"].(string)
	switch hookEvent {
	case "UserPromptSubmit":
		text, _ := payload["prompt"].(string)
		return buildRecord(text, "notify-claude-hook", hookEvent, payload, observedAt, ConfidenceHigh), true
	case "beforeSubmitPrompt":
		text, _ := payload["prompt"].(string)
		return buildRecord(text, "notify-cursor-hook", hookEvent, payload, observedAt, ConfidenceHigh), true
	}
	return SessionPromptRecord{}, false
}

// ExtractPromptFromTelemetry maps a telemetry event's name/payload into a
// SessionPromptRecord. Codex prompts arrive as event name "codex.user_prompt"
// (OTLP) or "user_prompt" (history).
func ExtractPromptFromTelemetry(eventName string, payload map[string]any, observedAt time.Time) (SessionPromptRecord, bool) {
	switch eventName {
	case "codex.user_prompt", "user_prompt":
		text, _ := payload["text"].(string)
		confidence := ConfidenceMedium
		if text != "" {
			confidence = ConfidenceHigh
		}
		return buildRecord(text, "telemetry-codex", eventName, payload, observedAt, confidence), true
	}
	return SessionPromptRecord{}, false
}

func buildRecord(text, captureSource, providerEventName string, payload map[string]any, observedAt time.Time, confidence Confidence) SessionPromptRecord {
	return SessionPromptRecord{
		Text:              text,
		Hash:              hashPromptRecord(providerEventName, text, payload),
		Confidence:        confidence,
		CaptureSource:     captureSource,
		ProviderEventName: providerEventName,
		ObservedAt:        observedAt.UTC().Format(time.RFC3339),
	}
}
