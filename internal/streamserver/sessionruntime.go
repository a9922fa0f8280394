package streamserver

import (
	"context"
	"encoding/base64"

	"github.com/harborctl/harborctl/internal/adapter"
	"github.com/harborctl/harborctl/internal/broker"
	"github.com/harborctl/harborctl/internal/notifytail"
	"github.com/harborctl/harborctl/internal/ptyhost"
	"github.com/harborctl/harborctl/internal/snapshot"
	"github.com/harborctl/harborctl/internal/telemetry"
)

// sessionRuntime is the set of live, per-session components the Stream
// Server wires together when a pty.start command is accepted: the PTY
// Host, its Session Broker, and the background Telemetry/Notify tailers
// that feed the Session Coordinator.
type sessionRuntime struct {
	sessionID string
	agentType string

	handle *ptyhost.Handle
	br     *broker.Broker
	oracle *snapshot.Oracle
	ingest *telemetry.IngestServer

	cancel context.CancelFunc
}

// startSessionParams carries the pty.start command body.
type startSessionParams struct {
	SessionID    string            `json:"sessionId"`
	AgentType    string            `json:"agentType"`
	Command      string            `json:"command"`
	BaseArgs     []string          `json:"baseArgs"`
	Env          map[string]string `json:"env"`
	Cwd          string            `json:"cwd"`
	Cols         int               `json:"cols"`
	Rows         int               `json:"rows"`
	AdapterState map[string]any    `json:"adapterState"`
	NotifyPath   string            `json:"notifyPath"`
	HistoryPath  string            `json:"historyPath"`
}

// startSession spawns a new PTY-attached child and wires it into the
// broker, coordinator, and telemetry/notify tailers. The Stream Server
// serializes starts per sessionID by virtue of per-connection command
// processing order; concurrent starts for distinct sessionIDs are
// independent.
func (s *Server) startSession(p startSessionParams) (*sessionRuntime, error) {
	if p.SessionID == "" {
		return nil, invalidf("sessionId is required")
	}
	if p.Command == "" {
		return nil, invalidf("command is required")
	}
	cols, rows := p.Cols, p.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	// The telemetry ingest server binds its ephemeral port before the child
	// spawns so its endpoint can be folded into the child's environment:
	// agents report OTEL telemetry over HTTP to a per-session endpoint the
	// harness controls.
	var ingest *telemetry.IngestServer
	env := p.Env
	{
		var err error
		ingest, err = telemetry.NewIngestServer(p.SessionID, telemetry.Callbacks{
			OnEvents: func(events []telemetry.Event) {
				for _, e := range events {
					s.sessions.HandleTelemetry(p.SessionID, e)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		env = make(map[string]string, len(p.Env)+len(adapter.OTLPEnv(p.AgentType, ingest.Port)))
		for k, v := range p.Env {
			env[k] = v
		}
		for k, v := range adapter.OTLPEnv(p.AgentType, ingest.Port) {
			env[k] = v
		}
	}

	args := adapter.ComposeStartArgs(p.AgentType, p.BaseArgs, p.AdapterState)
	handle, err := ptyhost.Start(p.Command, args, env, p.Cwd, cols, rows)
	if err != nil {
		// PTY spawn failure fails pty.start synchronously; the caller
		// surfaces this as command.failed{kind:"transient"}.
		_ = ingest.Close()
		return nil, err
	}

	br := broker.New(handle, s.cfg.MaxBacklogBytes)
	s.sessions.Register(p.SessionID, p.AgentType, handle.ProcessId())

	ctx, cancel := context.WithCancel(context.Background())
	oracle := snapshot.New(rows, cols)
	rt := &sessionRuntime{sessionID: p.SessionID, agentType: p.AgentType, handle: handle, br: br, oracle: oracle, ingest: ingest, cancel: cancel}

	go func() {
		_ = ingest.Serve()
	}()

	// Bridge broker output/exit onto the observed-event bus as
	// session-output / session-event{session-exit}. Only subscriptions with
	// includeOutput=true receive the output events. The same bytes also
	// feed the snapshot oracle so session.snapshot reflects live output
	// without a separate attachment.
	br.Attach(broker.Handlers{
		OnData: func(c broker.Chunk) {
			oracle.Write(c.Data)
			s.bus.Publish("session-output", p.SessionID, map[string]any{
				"cursor":      c.Cursor,
				"chunkBase64": base64.StdEncoding.EncodeToString(c.Data),
			})
		},
		OnExit: func(info ptyhost.ExitInfo) {
			s.sessions.HandleExit(p.SessionID, info)
		},
	}, 0)

	go handle.Run()

	if p.NotifyPath != "" {
		tailer := notifytail.NewTailer(p.NotifyPath, 0)
		go func() {
			_ = tailer.Run(ctx, func(n notifytail.Notification) {
				s.sessions.HandleNotify(p.SessionID, n)
			})
		}()
	}
	if p.HistoryPath != "" {
		hist := telemetry.NewHistoryTailer(p.HistoryPath, 0)
		hist.SessionID = p.SessionID
		go func() {
			_ = hist.Run(ctx, func(e telemetry.Event) {
				s.sessions.HandleTelemetry(p.SessionID, e)
			})
		}()
	}

	s.runtimesMu.Lock()
	s.runtimes[p.SessionID] = rt
	s.runtimesMu.Unlock()
	return rt, nil
}

// replay collects every backlogged chunk since sinceCursor synchronously
// (pty.attach's pragmatic semantics: live delivery already flows through
// stream.subscribe's bridge set up at pty.start, so attach only needs a
// one-shot backlog catch-up, not a persistent attachment).
func (rt *sessionRuntime) replay(sinceCursor uint64) ptyAttachResult {
	var chunks []chunkDTO
	var exited bool
	var exitInfo ptyhost.ExitInfo
	id := rt.br.Attach(broker.Handlers{
		OnData: func(c broker.Chunk) {
			chunks = append(chunks, chunkDTO{Cursor: c.Cursor, ChunkBase64: base64.StdEncoding.EncodeToString(c.Data)})
		},
		OnExit: func(info ptyhost.ExitInfo) {
			exited = true
			exitInfo = info
		},
	}, sinceCursor)
	rt.br.Detach(id)

	result := ptyAttachResult{Chunks: chunks, Exited: exited}
	if chunks == nil {
		result.Chunks = []chunkDTO{}
	}
	if exited {
		result.ExitCode = exitInfo.Code
	}
	return result
}

func (s *Server) runtime(sessionID string) (*sessionRuntime, bool) {
	s.runtimesMu.Lock()
	defer s.runtimesMu.Unlock()
	rt, ok := s.runtimes[sessionID]
	return rt, ok
}

// closeSession stops a session's background tailers, closes its PTY, and
// removes its runtime bookkeeping. The LiveSession record itself is only
// removed by the explicit session.remove command.
func (s *Server) closeSession(sessionID string) {
	s.runtimesMu.Lock()
	rt, ok := s.runtimes[sessionID]
	delete(s.runtimes, sessionID)
	s.runtimesMu.Unlock()
	if !ok {
		return
	}
	rt.cancel()
	_ = rt.handle.Close()
}
