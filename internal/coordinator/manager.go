package coordinator

import (
	"sync"
	"time"

	"github.com/harborctl/harborctl/internal/adapter"
	"github.com/harborctl/harborctl/internal/notifytail"
	"github.com/harborctl/harborctl/internal/ptyhost"
	"github.com/harborctl/harborctl/internal/telemetry"
)

// TelemetrySummary is the condensed telemetry picture attached to a Live
// Session record: the last event's source, name, and observation time.
type TelemetrySummary struct {
	LastSource    telemetry.Source
	LastEventName string
	LastObservedAt time.Time
}

// StatusModel is the per-agent human-facing projection: "active"/"inactive"
// plus what the agent was last known to be doing. A nil *StatusModel on a
// LiveSession is meaningful and distinct from a StatusModel with empty
// fields: nil means "no agent-specific reducer has run yet", not
// "explicitly cleared" (preserved verbatim rather than normalized, per
// DESIGN.md's open-question decision).
type StatusModel struct {
	Active         bool
	LastKnownWork  string
	LastKnownWorkAt time.Time
}

// LiveSession is the runtime-only record the Coordinator owns exclusively.
type LiveSession struct {
	SessionID      string
	PID            int
	AgentType      string
	RuntimeStatus  State
	AttentionReason string
	Live           bool
	ControllerID   string
	ControllerType string
	ControllerLabel string
	StatusModel    *StatusModel
	Telemetry      *TelemetrySummary
	LastEventAt    time.Time
	StartedAt      time.Time
	ExitRecord     *ExitInfo
}

// runningEligible names, per agent type, the telemetry event names allowed
// to revive a needs-input|completed session back to running; it never
// revives from non-eligible sources such as traces or history. Mirrors the
// adapters' own prompt-submission event names (internal/adapter/prompt.go).
var runningEligible = map[string]map[string]bool{
	"codex":  {"codex.user_prompt": true, "user_prompt": true},
	"claude": {"UserPromptSubmit": true},
	"cursor": {"beforeSubmitPrompt": true},
}

// needsInputEligible names the telemetry sources allowed to move a session
// to needs-input. A trace span or a history line never triggers it on its
// own; only the OTLP log/metric side channels carry that signal.
var needsInputEligible = map[telemetry.Source]bool{
	telemetry.SourceOtlpLog:    true,
	telemetry.SourceOtlpMetric: true,
}

// completedEligible reports whether e is one of the specific signals allowed
// to complete a session: the codex turn-duration metric, or an OTLP log
// event (already filtered by deriveStatusHint's completed-summary rules
// before reaching here). NotifyTail's TurnCompleted completes a session
// through ReconcileNotify instead, never through this path; an otlp-trace
// span or a history line must never complete a session on its own.
func completedEligible(e telemetry.Event) bool {
	switch e.Source {
	case telemetry.SourceOtlpMetric:
		return e.EventName == "codex.turn.e2e_duration_ms"
	case telemetry.SourceOtlpLog:
		return true
	default:
		return false
	}
}

// Manager owns the full set of LiveSessions and is the Coordinator's
// external-facing registry: the Stream Server queries it for session.list/
// session.status and the Supervisor registers/deregisters sessions as PTYs
// start and exit.
type Manager struct {
	coord *Coordinator
	emit  func(ObservedEvent)

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	live *LiveSession
	sess *Session
}

// NewManager creates a Manager whose Coordinator calls emit for every
// ObservedEvent.
func NewManager(emit func(ObservedEvent)) *Manager {
	m := &Manager{emit: emit, sessions: make(map[string]*entry)}
	m.coord = New(emit)
	return m
}

// Register creates a LiveSession in StateRunning for a freshly started PTY.
func (m *Manager) Register(sessionID, agentType string, pid int) *LiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := &LiveSession{
		SessionID:     sessionID,
		PID:           pid,
		AgentType:     agentType,
		RuntimeStatus: StateRunning,
		Live:          true,
		StartedAt:     time.Now().UTC(),
		LastEventAt:   time.Now().UTC(),
	}
	m.sessions[sessionID] = &entry{live: live, sess: NewSession()}
	return live
}

// Remove destroys a LiveSession record on session.remove.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Get returns the LiveSession for sessionID and whether it exists.
func (m *Manager) Get(sessionID string) (LiveSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return LiveSession{}, false
	}
	return *e.live, true
}

// List returns a snapshot of every LiveSession, in no particular order; the
// Stream Server sorts as needed for session.list.
func (m *Manager) List() []LiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LiveSession, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, *e.live)
	}
	return out
}

func (m *Manager) lookup(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// HandleTelemetry reconciles one telemetry.Event against sessionID's state
// and refreshes its LiveSession projection and StatusModel.
func (m *Manager) HandleTelemetry(sessionID string, e telemetry.Event) {
	en := m.lookup(sessionID)
	if en == nil {
		return
	}
	if rec, ok := adapter.ExtractPromptFromTelemetry(e.EventName, e.Payload, e.ObservedAt); ok {
		m.emitPrompt(sessionID, en, rec)
	}
	switch e.StatusHint {
	case telemetry.StatusHintRunning:
		state, _, _ := en.sess.Snapshot()
		fromIneligibleSource := e.Source == telemetry.SourceHistory || e.Source == telemetry.SourceOtlpTrace
		if state != StateRunning && (fromIneligibleSource || !runningEligible[en.live.AgentType][e.EventName]) {
			// non-eligible source: still update the status model / telemetry
			// summary below, but do not let ReconcileTelemetry revive the
			// state machine.
			m.refreshProjection(en, e)
			return
		}
	case telemetry.StatusHintNeedsInput:
		if !needsInputEligible[e.Source] {
			m.refreshProjection(en, e)
			return
		}
	case telemetry.StatusHintCompleted:
		if !completedEligible(e) {
			m.refreshProjection(en, e)
			return
		}
	}
	m.coord.ReconcileTelemetry(sessionID, en.sess, e)
	m.refreshProjection(en, e)
}

// refreshProjection updates the LiveSession's cached state/attention/
// telemetry/statusModel fields after a reconciliation step. Out-of-order
// events (observedAt before the current LastKnownWorkAt) are ignored for
// the StatusModel only.
func (m *Manager) refreshProjection(en *entry, e telemetry.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, attention, _ := en.sess.Snapshot()
	en.live.RuntimeStatus = state
	en.live.AttentionReason = attention
	en.live.LastEventAt = time.Now().UTC()
	en.live.Telemetry = &TelemetrySummary{
		LastSource:     e.Source,
		LastEventName:  e.EventName,
		LastObservedAt: e.ObservedAt,
	}
	if en.live.StatusModel != nil && e.ObservedAt.Before(en.live.StatusModel.LastKnownWorkAt) {
		return
	}
	if e.Summary == "" && e.EventName == "" {
		return
	}
	work := e.Summary
	if work == "" {
		work = e.EventName
	}
	en.live.StatusModel = &StatusModel{
		Active:          state == StateRunning,
		LastKnownWork:   work,
		LastKnownWorkAt: e.ObservedAt,
	}
}

// emitPrompt records a recognized prompt-submission record onto the
// LiveSession's StatusModel (when it carries text) and emits
// session-key-event so subscribers observe the captured prompt directly,
// rather than only its downstream effect on the status hint.
func (m *Manager) emitPrompt(sessionID string, en *entry, rec adapter.SessionPromptRecord) {
	if rec.Text != "" {
		m.mu.Lock()
		state, _, _ := en.sess.Snapshot()
		en.live.StatusModel = &StatusModel{
			Active:        state == StateRunning,
			LastKnownWork: rec.Text,
		}
		if ts, err := time.Parse(time.RFC3339, rec.ObservedAt); err == nil {
			en.live.StatusModel.LastKnownWorkAt = ts
		}
		m.mu.Unlock()
	}
	m.emit(ObservedEvent{
		Kind:      EventSessionKey,
		SessionID: sessionID,
		Prompt: &PromptRecord{
			Text:              rec.Text,
			Hash:              rec.Hash,
			Confidence:        string(rec.Confidence),
			CaptureSource:     rec.CaptureSource,
			ProviderEventName: rec.ProviderEventName,
			ObservedAt:        rec.ObservedAt,
		},
		OccurredAt: time.Now().UTC(),
	})
}

// HandleNotify reconciles one notifytail.Notification against sessionID.
func (m *Manager) HandleNotify(sessionID string, n notifytail.Notification) {
	en := m.lookup(sessionID)
	if en == nil {
		return
	}
	if rec, ok := adapter.ExtractPromptFromNotify(n.Payload, n.ObservedAt); ok {
		m.emitPrompt(sessionID, en, rec)
	}
	m.coord.ReconcileNotify(sessionID, en.sess, n)
	m.mu.Lock()
	state, attention, _ := en.sess.Snapshot()
	en.live.RuntimeStatus = state
	en.live.AttentionReason = attention
	en.live.LastEventAt = time.Now().UTC()
	m.mu.Unlock()
}

// HandleExit reconciles the terminal PTY exit for sessionID.
func (m *Manager) HandleExit(sessionID string, info ptyhost.ExitInfo) {
	en := m.lookup(sessionID)
	if en == nil {
		return
	}
	m.coord.ReconcileExit(sessionID, en.sess, info)
	m.mu.Lock()
	en.live.RuntimeStatus = StateExited
	en.live.Live = false
	en.live.AttentionReason = ""
	en.live.ExitRecord = &ExitInfo{Code: info.Code, SignalName: info.SignalName}
	en.live.LastEventAt = time.Now().UTC()
	m.mu.Unlock()
}

// Respond applies a session.respond command: the payload is delivered by
// the caller (the Stream Server, which owns the broker/PTY handle) and the
// session transitions back to running, but only while needs-input.
func (m *Manager) Respond(sessionID string) error {
	en := m.lookup(sessionID)
	if en == nil {
		return ErrNotFoundSession
	}
	en.sess.mu.Lock()
	if en.sess.state != StateNeedsInput {
		en.sess.mu.Unlock()
		return nil
	}
	en.sess.state = StateRunning
	en.sess.attention = ""
	en.sess.mu.Unlock()

	m.mu.Lock()
	en.live.RuntimeStatus = StateRunning
	en.live.AttentionReason = ""
	en.live.LastEventAt = time.Now().UTC()
	m.mu.Unlock()

	m.emit(ObservedEvent{Kind: EventSessionStatus, SessionID: sessionID, State: StateRunning, OccurredAt: time.Now().UTC()})
	return nil
}

// Claim delegates to the Coordinator for sessionID's controller claim,
// returning whether the caller newly claimed or took over the session.
func (m *Manager) Claim(sessionID, controllerID, controllerType, label string, takeover bool) (ClaimAction, error) {
	en := m.lookup(sessionID)
	if en == nil {
		return "", ErrNotFoundSession
	}
	action, err := m.coord.ClaimController(sessionID, en.sess, controllerID, controllerType, label, takeover)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	en.live.ControllerID, en.live.ControllerType, en.live.ControllerLabel = controllerID, controllerType, label
	m.mu.Unlock()
	return action, nil
}

// Release delegates to the Coordinator for sessionID's controller release.
func (m *Manager) Release(sessionID string) error {
	en := m.lookup(sessionID)
	if en == nil {
		return ErrNotFoundSession
	}
	m.coord.ReleaseController(sessionID, en.sess)
	m.mu.Lock()
	en.live.ControllerID, en.live.ControllerType, en.live.ControllerLabel = "", "", ""
	m.mu.Unlock()
	return nil
}

// CheckController reports whether callerID currently holds sessionID's
// controller.
func (m *Manager) CheckController(sessionID, callerID string) error {
	en := m.lookup(sessionID)
	if en == nil {
		return ErrNotFoundSession
	}
	return en.sess.CheckController(sessionID, callerID)
}

// errNotFoundSession is a sentinel distinct from store.ErrNotFound so the
// Stream Server can surface "session not found" without the coordinator
// package importing store.
type errNotFoundSession struct{}

func (errNotFoundSession) Error() string { return "coordinator: session not found" }

// ErrNotFoundSession is returned by Manager methods for an unknown sessionID.
var ErrNotFoundSession error = errNotFoundSession{}
