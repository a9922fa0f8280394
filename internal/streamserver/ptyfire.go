package streamserver

import (
	"encoding/base64"

	"github.com/harborctl/harborctl/internal/ptyhost"
)

// handlePTYInput, handlePTYResize, handlePTYSignal implement the
// fire-and-forget envelopes: no command.accepted/completed/failed reply,
// applied to the live session if any. A reference to an unknown or
// already-exited sessionId is silently a no-op.
func (c *connection) handlePTYInput(env inEnvelope) {
	rt, ok := c.server.runtime(env.SessionID)
	if !ok {
		return
	}
	data, err := base64.StdEncoding.DecodeString(env.DataBase64)
	if err != nil {
		return
	}
	rt.handle.Write(data)
}

func (c *connection) handlePTYResize(env inEnvelope) {
	rt, ok := c.server.runtime(env.SessionID)
	if !ok {
		return
	}
	if env.Cols <= 0 || env.Rows <= 0 {
		return
	}
	_ = rt.handle.Resize(env.Cols, env.Rows)
}

func (c *connection) handlePTYSignal(env inEnvelope) {
	rt, ok := c.server.runtime(env.SessionID)
	if !ok {
		return
	}
	switch env.Signal {
	case string(ptyhost.SignalInterrupt):
		_ = rt.handle.Signal(ptyhost.SignalInterrupt)
	case string(ptyhost.SignalEOF):
		_ = rt.handle.Signal(ptyhost.SignalEOF)
	case string(ptyhost.SignalTerminate):
		_ = rt.handle.Signal(ptyhost.SignalTerminate)
	}
}
