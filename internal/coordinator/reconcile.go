package coordinator

import (
	"time"

	"github.com/harborctl/harborctl/internal/notifytail"
	"github.com/harborctl/harborctl/internal/ptyhost"
	"github.com/harborctl/harborctl/internal/telemetry"
)

// Coordinator fans reconciled state transitions out as ObservedEvents. One
// Coordinator is shared across all sessions; each Session carries its own
// lock so reconciliation for different sessions never contends.
type Coordinator struct {
	emit func(ObservedEvent)
}

// New creates a Coordinator that calls emit for every ObservedEvent produced
// by reconciliation. emit must not block.
func New(emit func(ObservedEvent)) *Coordinator {
	return &Coordinator{emit: emit}
}

// ReconcileTelemetry folds one telemetry.Event into the session's state. A
// dedup check against the event's fingerprint runs first: retried OTLP
// deliveries or re-tailed history lines that were already seen produce no
// further transition.
func (c *Coordinator) ReconcileTelemetry(sessionID string, s *Session, e telemetry.Event) {
	s.mu.Lock()
	if e.Fingerprint != "" {
		if _, seen := s.seenFp[e.Fingerprint]; seen {
			s.mu.Unlock()
			return
		}
		s.seenFp[e.Fingerprint] = struct{}{}
	}
	changed, newState, attention := applyHint(s, e.StatusHint, "")
	s.mu.Unlock()

	if changed {
		c.emitStatus(sessionID, newState, attention)
	}
}

// ReconcileNotify folds one notify Notification into the session's state.
func (c *Coordinator) ReconcileNotify(sessionID string, s *Session, n notifytail.Notification) {
	var hint telemetry.StatusHint
	switch n.Kind {
	case notifytail.KindTurnCompleted:
		hint = telemetry.StatusHintCompleted
	case notifytail.KindAttentionRequired:
		hint = telemetry.StatusHintNeedsInput
	}

	s.mu.Lock()
	changed, newState, attention := applyHint(s, hint, n.Reason)
	s.mu.Unlock()

	if changed {
		c.emitStatus(sessionID, newState, attention)
	}
}

// ReconcileExit records the terminal PTY exit and always transitions to
// StateExited, overriding whatever state was previously inferred: exit is
// authoritative over every other signal source.
func (c *Coordinator) ReconcileExit(sessionID string, s *Session, info ptyhost.ExitInfo) {
	s.mu.Lock()
	s.state = StateExited
	s.attention = ""
	s.exitInfo = &ExitInfo{Code: info.Code, SignalName: info.SignalName}
	s.mu.Unlock()

	c.emit(ObservedEvent{
		Kind:       EventSessionExit,
		SessionID:  sessionID,
		State:      StateExited,
		OccurredAt: time.Now().UTC(),
	})
}

// applyHint must be called with s.mu held. It returns whether state changed
// and the resulting (state, attention) pair. A session already StateExited
// never moves (exit is terminal); within non-terminal states, StatusHint
// transitions as: running -> (completed|needs-input), needs-input ->
// (running|completed), completed -> running (a new turn starting resets
// completed back to running: completed is not sticky).
func applyHint(s *Session, hint telemetry.StatusHint, attentionReason string) (bool, State, string) {
	if s.state == StateExited {
		return false, s.state, s.attention
	}
	switch hint {
	case telemetry.StatusHintNeedsInput:
		changed := s.state != StateNeedsInput || s.attention != attentionReason
		s.state = StateNeedsInput
		s.attention = attentionReason
		return changed, s.state, s.attention
	case telemetry.StatusHintCompleted:
		changed := s.state != StateCompleted
		s.state = StateCompleted
		s.attention = ""
		return changed, s.state, s.attention
	case telemetry.StatusHintRunning:
		changed := s.state != StateRunning
		s.state = StateRunning
		s.attention = ""
		return changed, s.state, s.attention
	default:
		return false, s.state, s.attention
	}
}

func (c *Coordinator) emitStatus(sessionID string, state State, attention string) {
	c.emit(ObservedEvent{
		Kind:       EventSessionStatus,
		SessionID:  sessionID,
		State:      state,
		Attention:  attention,
		OccurredAt: time.Now().UTC(),
	})
}

// ClaimController attempts to assign (controllerID, controllerType, label)
// as s's controller. On success it emits session-control
// with the resulting action ("claimed" or "taken-over"); on
// ErrControllerConflict it emits nothing and returns the error for the
// caller to surface as command.failed.
func (c *Coordinator) ClaimController(sessionID string, s *Session, controllerID, controllerType, label string, takeover bool) (ClaimAction, error) {
	action, err := s.Claim(sessionID, controllerID, controllerType, label, takeover)
	if err != nil {
		return "", err
	}
	c.emit(ObservedEvent{
		Kind:       EventSessionControl,
		SessionID:  sessionID,
		Controller: controllerID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	})
	return action, nil
}

// ReleaseController clears s's controller and emits session-control{action:
// "released"} only if a controller was actually held: releasing an
// unowned session is a no-op that emits nothing.
func (c *Coordinator) ReleaseController(sessionID string, s *Session) {
	if !s.Release() {
		return
	}
	c.emit(ObservedEvent{
		Kind:       EventSessionControl,
		SessionID:  sessionID,
		Action:     ClaimActionReleased,
		OccurredAt: time.Now().UTC(),
	})
}
