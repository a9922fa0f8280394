// Package streamserver implements the Stream Server: a TCP listener
// speaking line-delimited JSON, dispatching commands against the Workspace
// Store, Session Coordinator, Session Broker, and PTY Host, and fanning
// out observed events to subscribed connections.
package streamserver

import (
	"encoding/json"
	"time"
)

// inEnvelope is one parsed line of client input. Type discriminates the
// envelope shape: "auth", "command", "pty.input", "pty.resize", "pty.signal".
// Fields not used by a given Type are simply absent from
// the wire object; json.RawMessage defers their decoding until the
// dispatcher knows which shape to expect.
type inEnvelope struct {
	Type string `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// command
	CommandID string          `json:"commandId,omitempty"`
	Command   json.RawMessage `json:"command,omitempty"`

	// pty.input / pty.resize / pty.signal (fire-and-forget)
	SessionID  string `json:"sessionId,omitempty"`
	DataBase64 string `json:"dataBase64,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Signal     string `json:"signal,omitempty"`
}

// commandEnvelope is the nested object carried by inEnvelope.Command: its
// own Type names the command (e.g. "directory.upsert") and Body carries the
// command-specific parameters.
type commandEnvelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// outEnvelope is the single outbound shape every server->client message
// uses; unused fields are simply omitted on the wire.
type outEnvelope struct {
	Type           string         `json:"type"`
	CommandID      string         `json:"commandId,omitempty"`
	Error          string         `json:"error,omitempty"`
	Kind           string         `json:"kind,omitempty"`
	Result         any            `json:"result,omitempty"`
	SubscriptionID string         `json:"subscriptionId,omitempty"`
	Cursor         uint64         `json:"cursor,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	OccurredAt     string         `json:"occurredAt,omitempty"`
	Event          string         `json:"event,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func authOK() outEnvelope { return outEnvelope{Type: "auth.ok"} }

func authError(err string) outEnvelope {
	return outEnvelope{Type: "auth.error", Error: err}
}

func accepted(commandID string) outEnvelope {
	return outEnvelope{Type: "command.accepted", CommandID: commandID}
}

func completed(commandID string, result any) outEnvelope {
	return outEnvelope{Type: "command.completed", CommandID: commandID, Result: result}
}

func failed(commandID, kind string, err error) outEnvelope {
	return outEnvelope{Type: "command.failed", CommandID: commandID, Kind: kind, Error: err.Error()}
}

func streamEvent(subscriptionID string, cursor uint64, event string, sessionID string, data map[string]any) outEnvelope {
	return outEnvelope{
		Type:           "stream.event",
		SubscriptionID: subscriptionID,
		Cursor:         cursor,
		Event:          event,
		SessionID:      sessionID,
		OccurredAt:     isoNow(),
		Data:           data,
	}
}

func isoNow() string { return time.Now().UTC().Format(time.RFC3339Nano) }
