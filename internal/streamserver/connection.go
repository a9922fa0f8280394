package streamserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/google/uuid"
)

// connection owns one accepted TCP socket: a single reader/dispatcher loop
// (preserving per-connection command-receipt ordering)
// and a mutex-serialized writer shared with every subscription delivering
// to this connection.
type connection struct {
	server *Server
	conn   net.Conn

	writeMu sync.Mutex

	authed bool

	subsMu sync.Mutex
	subs   map[string]struct{}
}

func newConnection(s *Server, conn net.Conn) *connection {
	return &connection{
		server: s,
		conn:   conn,
		authed: s.cfg.AuthToken == "",
		subs:   make(map[string]struct{}),
	}
}

// send marshals env and writes it followed by '\n'. Safe for concurrent
// callers (the connection's own dispatch loop and any number of
// subscription delivery goroutines).
func (c *connection) send(env outEnvelope) {
	buf, err := json.Marshal(env)
	if err != nil {
		return
	}
	buf = append(buf, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = c.conn.Write(buf)
}

// run reads line-delimited envelopes until EOF/error/ctx cancellation,
// dispatching each in receipt order. Malformed lines are dropped without
// closing the connection. On return, every
// subscription this connection registered is torn down.
func (c *connection) run(ctx context.Context) {
	defer c.conn.Close()
	defer c.teardown()

	sc := newLineScanner(c.conn)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env inEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *connection) teardown() {
	c.subsMu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subsMu.Unlock()
	c.server.bus.UnsubscribeAll(ids)
}

func (c *connection) dispatch(ctx context.Context, env inEnvelope) {
	switch env.Type {
	case "auth":
		c.handleAuth(env)
	case "command":
		c.handleCommand(ctx, env)
	case "pty.input":
		if !c.requireAuth("") {
			return
		}
		c.handlePTYInput(env)
	case "pty.resize":
		if !c.requireAuth("") {
			return
		}
		c.handlePTYResize(env)
	case "pty.signal":
		if !c.requireAuth("") {
			return
		}
		c.handlePTYSignal(env)
	default:
		// Unknown envelope type: malformed, ignored.
	}
}

func (c *connection) handleAuth(env inEnvelope) {
	if c.server.cfg.AuthToken == "" || env.Token == c.server.cfg.AuthToken {
		c.authed = true
		c.send(authOK())
		return
	}
	c.send(authError("invalid token"))
}

// requireAuth rejects fire-and-forget envelopes received before auth.ok on
// an authenticated server. commandID is empty for fire-and-forget types
// (there is no reply to send).
func (c *connection) requireAuth(commandID string) bool {
	if c.authed {
		return true
	}
	if commandID != "" {
		c.send(failed(commandID, kindUnauthenticated, errUnauthenticated))
	}
	return false
}

var errUnauthenticated = &invalidError{msg: "not authenticated"}

func (c *connection) handleCommand(ctx context.Context, env inEnvelope) {
	if !c.requireAuth(env.CommandID) {
		return
	}
	var cmd commandEnvelope
	if err := json.Unmarshal(env.Command, &cmd); err != nil {
		c.send(failed(env.CommandID, kindMalformed, err))
		return
	}
	c.send(accepted(env.CommandID))

	result, err := c.server.runCommand(ctx, c, cmd.Type, cmd.Body)
	if err != nil {
		c.send(failed(env.CommandID, classifyErr(err), err))
		return
	}
	c.send(completed(env.CommandID, result))
}

func (c *connection) registerSub(id string) {
	c.subsMu.Lock()
	c.subs[id] = struct{}{}
	c.subsMu.Unlock()
}

func (c *connection) unregisterSub(id string) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}

func newSubscriptionID() string { return uuid.NewString() }
