// Package coordinator implements the Session Coordinator: a per-session
// state machine reconciling telemetry, notify, history, and PTY exit
// signals into one of four states, plus the controller claim/release/
// takeover protocol. Holding the controller is required for
// session.respond; pty.input and pty.resize are not checked against it.
package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// State is one of the four lifecycle states a session can be in.
type State string

const (
	StateRunning    State = "running"
	StateNeedsInput State = "needs-input"
	StateCompleted  State = "completed"
	StateExited     State = "exited"
)

// ObservedEventKind names the event classes the Stream Server fans out to
// subscribers.
type ObservedEventKind string

const (
	EventSessionStatus  ObservedEventKind = "session-status"
	EventSessionKey     ObservedEventKind = "session-key-event"
	EventSessionControl ObservedEventKind = "session-control"
	EventSessionOutput  ObservedEventKind = "session-output"
	EventSessionExit    ObservedEventKind = "session-event"
)

// ObservedEvent is the uniform envelope the Coordinator emits whenever state,
// attention reason, controller ownership, or a captured prompt changes.
type ObservedEvent struct {
	Kind       ObservedEventKind
	SessionID  string
	State      State
	Attention  string
	Controller string
	Action     ClaimAction // "claimed" | "taken-over" | "released"
	Prompt     *PromptRecord
	OccurredAt time.Time
}

// PromptRecord is the session-key-event payload produced when the notify or
// telemetry tailers recognize a prompt-submission shape; it mirrors
// adapter.SessionPromptRecord without importing that package into this
// event envelope.
type PromptRecord struct {
	Text              string
	Hash              string
	Confidence        string
	CaptureSource     string
	ProviderEventName string
	ObservedAt        string
}

// Session holds one session's coordinator state. All mutation happens
// through Coordinator methods, which hold the mutex for the duration of a
// reconciliation step and emit events only after releasing it.
type Session struct {
	mu              sync.Mutex
	state           State
	attention       string
	controllerID    string // empty means unclaimed
	controllerType  string
	controllerLabel string
	exitInfo        *ExitInfo
	seenFp          map[string]struct{}
}

// ExitInfo mirrors ptyhost.ExitInfo without importing it, keeping this
// package independent of the PTY layer (the Supervisor wires the two
// together).
type ExitInfo struct {
	Code       *int
	SignalName *string
}

// NewSession creates a session starting in StateRunning with no controller.
func NewSession() *Session {
	return &Session{state: StateRunning, seenFp: make(map[string]struct{})}
}

// Snapshot returns the session's current state, attention reason, and
// controller id.
func (s *Session) Snapshot() (State, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attention, s.controllerID
}

// ErrConflict is returned by write operations issued by a caller that is
// not the current controller.
type ErrConflict struct {
	SessionID string
	Caller    string
	Owner     string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("coordinator: session %s: caller %q is not controller (owned by %q)", e.SessionID, e.Caller, e.Owner)
}

// ErrControllerConflict is returned by Claim when the session is already
// held and takeover was not requested.
type ErrControllerConflict struct {
	SessionID    string
	CurrentLabel string
}

func (e *ErrControllerConflict) Error() string {
	return fmt.Sprintf("session is already claimed by %s", e.CurrentLabel)
}

// ClaimAction reports whether Claim assigned a previously-unowned session or
// took over an already-owned one.
type ClaimAction string

const (
	ClaimActionClaimed   ClaimAction = "claimed"
	ClaimActionTakenOver ClaimAction = "taken-over"
	ClaimActionReleased  ClaimAction = "released"
)

// Claim assigns (controllerID, controllerType, label) as the session's
// controller. If the session is unowned, it succeeds with ClaimActionClaimed.
// If owned by someone else: takeover=true replaces the controller
// (ClaimActionTakenOver); takeover=false fails with ErrControllerConflict
// naming the current label.
func (s *Session) Claim(sessionID, controllerID, controllerType, label string, takeover bool) (ClaimAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controllerID == "" {
		s.controllerID, s.controllerType, s.controllerLabel = controllerID, controllerType, label
		return ClaimActionClaimed, nil
	}
	if s.controllerID == controllerID {
		s.controllerType, s.controllerLabel = controllerType, label
		return ClaimActionClaimed, nil
	}
	if !takeover {
		return "", &ErrControllerConflict{SessionID: sessionID, CurrentLabel: s.controllerLabel}
	}
	s.controllerID, s.controllerType, s.controllerLabel = controllerID, controllerType, label
	return ClaimActionTakenOver, nil
}

// Release clears the controller unconditionally, returning true if a
// controller was actually held (so the caller can decide whether to emit a
// session-control event). Releasing an unowned session is a no-op that
// returns false: idempotent, it succeeds without emitting.
func (s *Session) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controllerID == "" {
		return false
	}
	s.controllerID, s.controllerType, s.controllerLabel = "", "", ""
	return true
}

// CheckController returns ErrConflict if callerID is not the current
// controller. Called by the Stream Server before applying session.respond;
// pty.input and pty.resize do not call it.
func (s *Session) CheckController(sessionID, callerID string) error {
	s.mu.Lock()
	owner := s.controllerID
	s.mu.Unlock()
	if owner != callerID {
		return &ErrConflict{SessionID: sessionID, Caller: callerID, Owner: owner}
	}
	return nil
}
