package telemetry

import "strings"

// statusHintRule pairs a case-insensitive substring match against an event's
// name/summary with the StatusHint it implies. Rules are evaluated in order;
// the first match wins.
type statusHintRule struct {
	substr string
	hint   StatusHint
}

var statusHintRules = []statusHintRule{
	{"needs-input", StatusHintNeedsInput},
	{"approval denied", StatusHintNeedsInput},
	{"turn-complete", StatusHintCompleted},
	{"response.completed", StatusHintCompleted},
	{"completed", StatusHintCompleted},
	{"user_prompt", StatusHintRunning},
	{"api_request", StatusHintRunning},
	{"response.created", StatusHintRunning},
}

// deriveStatusHint inspects the event name and summary for the substrings
// above, case-insensitively. Returns "" when no rule matches, meaning the
// event carries no lifecycle signal on its own.
func deriveStatusHint(eventName, summary string) StatusHint {
	haystack := strings.ToLower(eventName + " " + summary)
	for _, rule := range statusHintRules {
		if strings.Contains(haystack, rule.substr) {
			return rule.hint
		}
	}
	return ""
}
