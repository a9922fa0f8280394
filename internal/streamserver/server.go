package streamserver

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"

	"github.com/harborctl/harborctl/internal/activitylog"
	"github.com/harborctl/harborctl/internal/coordinator"
	"github.com/harborctl/harborctl/internal/store"
)

// Config configures a Server.
type Config struct {
	// AuthToken, when non-empty, gates every envelope before auth.ok.
	// Configured rather than read from the environment, for servers bound
	// to a non-loopback address.
	AuthToken string
	// MaxBacklogBytes is passed through to every session's broker (0 means
	// broker.DefaultMaxBacklogBytes).
	MaxBacklogBytes int
	// RetentionSize bounds the observed-event bus's replay horizon (0 means
	// DefaultRetentionSize).
	RetentionSize int
}

// Server is the Stream Server: a TCP listener speaking
// line-delimited JSON, dispatching commands against the Workspace Store,
// Session Coordinator, and PTY sessions it starts, and fanning out observed
// events via its EventBus.
type Server struct {
	cfg      Config
	store    *store.Store
	sessions *coordinator.Manager
	bus      *EventBus
	log      *activitylog.Logger

	runtimesMu sync.Mutex
	runtimes   map[string]*sessionRuntime

	connsMu sync.Mutex
	conns   map[*connection]struct{}
}

// New creates a Server backed by st for persisted state. It constructs its
// own Session Coordinator and EventBus, wiring the coordinator's emitted
// ObservedEvents and the store's published Events onto the same bus so
// stream.subscribe sees both session-* and directory-*/conversation-*
// events through one ordered, process-wide monotonic cursor space.
func New(cfg Config, st *store.Store, activity *activitylog.Logger) *Server {
	if activity == nil {
		activity = activitylog.Nop()
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		bus:      NewEventBus(cfg.RetentionSize),
		log:      activity,
		runtimes: make(map[string]*sessionRuntime),
		conns:    make(map[*connection]struct{}),
	}
	s.sessions = coordinator.NewManager(s.emitObserved)
	return s
}

// Bus exposes the EventBus so callers (e.g. the store construction site)
// can register its Event publisher; see Supervisor wiring.
func (s *Server) Bus() *EventBus { return s.bus }

// Sessions exposes the Session Coordinator's Manager so the Supervisor's
// background process-usage refresher can enumerate live sessions and their
// PIDs without reaching into the Server's connection-handling internals.
func (s *Server) Sessions() *coordinator.Manager { return s.sessions }

// emitObserved translates a coordinator.ObservedEvent into a bus publish,
// carrying the coordinator's own state/attention/action fields in Data.
func (s *Server) emitObserved(ev coordinator.ObservedEvent) {
	data := map[string]any{}
	if ev.State != "" {
		data["status"] = string(ev.State)
	}
	if ev.Attention != "" {
		data["attentionReason"] = ev.Attention
	}
	if ev.Controller != "" {
		data["controllerId"] = ev.Controller
	}
	if ev.Action != "" {
		data["action"] = string(ev.Action)
	}
	if ev.Prompt != nil {
		data["text"] = ev.Prompt.Text
		data["hash"] = ev.Prompt.Hash
		data["confidence"] = ev.Prompt.Confidence
		data["captureSource"] = ev.Prompt.CaptureSource
		data["providerEventName"] = ev.Prompt.ProviderEventName
		data["observedAt"] = ev.Prompt.ObservedAt
	}
	s.bus.Publish(string(ev.Kind), ev.SessionID, data)
}

// PublishStoreEvent re-wraps a store.Event as an observed event on the same
// bus: every successful store mutation publishes the corresponding
// observed event with a fresh cursor.
func (s *Server) PublishStoreEvent(e store.Event) {
	sessionID, _ := e.Data["conversationId"].(string)
	s.bus.Publish(e.Kind, sessionID, e.Data)
}

// Serve accepts connections on ln until ctx is cancelled, blocking until the
// listener is closed. Each connection runs its own reader/writer task pair.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		c := newConnection(s, conn)
		s.connsMu.Lock()
		s.conns[c] = struct{}{}
		s.connsMu.Unlock()
		go func() {
			c.run(ctx)
			s.connsMu.Lock()
			delete(s.conns, c)
			s.connsMu.Unlock()
		}()
	}
}

// Shutdown closes every live connection and every live session's PTY, in
// that order: stop accepting new connections, then close live sessions.
func (s *Server) Shutdown() {
	s.connsMu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}

	s.runtimesMu.Lock()
	ids := make([]string, 0, len(s.runtimes))
	for id := range s.runtimes {
		ids = append(ids, id)
	}
	s.runtimesMu.Unlock()
	for _, id := range ids {
		s.closeSession(id)
	}
}

// newLineScanner wraps conn in a bufio.Scanner splitting on '\n' with a
// generous max token size: PTY output base64-encoded into pty.input can
// make a single line much larger than bufio.Scanner's 64KiB default.
func newLineScanner(conn net.Conn) *bufio.Scanner {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return sc
}

var logUnhandled = log.Printf
