package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

// Callbacks receives decoded Events as an IngestServer's handlers parse
// incoming OTLP JSON bodies.
type Callbacks struct {
	OnEvents func([]Event)
}

// IngestServer is a per-session OTLP/HTTP JSON receiver, one instance bound
// to an ephemeral localhost port per launched agent, exposing the three
// /v1/{logs,metrics,traces} routes.
type IngestServer struct {
	Port      int
	SessionID string
	listener  net.Listener
	server    *http.Server
}

// NewIngestServer binds 127.0.0.1:0 and registers the three OTLP JSON
// routes, stamping every decoded Event with sessionID (folded into its
// dedup fingerprint alongside source/providerThreadId/eventName/observedAt).
// The caller must call Serve to start accepting connections.
func NewIngestServer(sessionID string, cb Callbacks) (*IngestServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &IngestServer{
		Port:      listener.Addr().(*net.TCPAddr).Port,
		SessionID: sessionID,
		listener:  listener,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", makeHandler(s, cb, ParseOTLPLogs))
	mux.HandleFunc("/v1/metrics", makeHandler(s, cb, ParseOTLPMetrics))
	mux.HandleFunc("/v1/traces", makeHandler(s, cb, ParseOTLPTraces))
	s.server = &http.Server{Handler: mux}
	return s, nil
}

// Serve blocks, accepting connections until Close is called.
func (s *IngestServer) Serve() error {
	err := s.server.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the server down, waiting up to 2s for in-flight requests.
func (s *IngestServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type otlpParser func(body []byte, sessionID string, receivedAt time.Time) ([]Event, error)

func makeHandler(s *IngestServer, cb Callbacks, parse otlpParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events, err := parse(body, s.SessionID, time.Now().UTC())
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(events) > 0 && cb.OnEvents != nil {
			cb.OnEvents(events)
		}
		w.WriteHeader(http.StatusOK)
	}
}
