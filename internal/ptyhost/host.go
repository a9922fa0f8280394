// Package ptyhost spawns a child process attached to a pseudo-terminal and
// exposes write/resize/close/signal plus a data/exit event stream. It is
// the lowest-level component in the harness: the Stream Server starts a
// Handle and writes, resizes and signals it, while the Session Broker
// (internal/broker) consumes its data and exit events.
package ptyhost

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Signal names accepted by Handle.Signal.
type Signal string

const (
	SignalInterrupt Signal = "interrupt"
	SignalEOF       Signal = "eof"
	SignalTerminate Signal = "terminate"
)

// ExitInfo describes how the child process terminated. Exactly one of
// Code/SignalName is set, or neither (synthetic exit after an internal
// error), so consumers always observe a uniform terminal event.
type ExitInfo struct {
	Code       *int
	SignalName *string
}

// Handle is a running PTY-attached child process.
type Handle struct {
	ptm *os.File
	cmd *exec.Cmd

	mu      sync.Mutex
	closed  bool
	exited  bool
	onData  func([]byte)
	onExit  func(ExitInfo)
	onError func(error)
}

// Start spawns command with args/env in cwd, attached to a new PTY sized
// cols x rows.
func Start(command string, args []string, env map[string]string, cwd string, cols, rows int) (*Handle, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	cmd.Env = buildEnv(env)

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("ptyhost: start %s: %w", command, err)
	}

	h := &Handle{ptm: ptm, cmd: cmd}
	return h, nil
}

// buildEnv merges the current process environment with overrides, with
// overrides winning (mirrors vt.go's StartPTY extraEnv handling).
func buildEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return os.Environ()
	}
	base := os.Environ()
	env := make([]string, 0, len(base)+len(overrides))
	for _, e := range base {
		key := e
		if idx := strings.IndexByte(e, '='); idx >= 0 {
			key = e[:idx]
		}
		if _, override := overrides[key]; !override {
			env = append(env, e)
		}
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// OnData registers the callback invoked for every chunk of PTY output. Must
// be called before Run to avoid missing early output.
func (h *Handle) OnData(fn func([]byte)) { h.onData = fn }

// OnExit registers the callback invoked exactly once when the child
// terminates, whether cleanly or via an internal read/wait error (in which
// case the event carries a synthesized ExitInfo{nil,nil}).
func (h *Handle) OnExit(fn func(ExitInfo)) { h.onExit = fn }

// Run starts the PTY read loop; blocks until the child exits or the PTY is
// closed. Must be run in its own goroutine by the caller — the Stream
// Server starts this goroutine per session.
func (h *Handle) Run() {
	buf := make([]byte, 32*1024)
	for {
		n, err := h.ptm.Read(buf)
		if n > 0 && h.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.onData(chunk)
		}
		if err != nil {
			h.finish()
			return
		}
	}
}

// finish waits for the child and emits exactly one exit event.
func (h *Handle) finish() {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.mu.Unlock()

	info := waitExitInfo(h.cmd)
	if h.onExit != nil {
		h.onExit(info)
	}
}

func waitExitInfo(cmd *exec.Cmd) ExitInfo {
	err := cmd.Wait()
	if err == nil {
		code := 0
		return ExitInfo{Code: &code}
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				name := status.Signal().String()
				return ExitInfo{SignalName: &name}
			}
			code := status.ExitStatus()
			return ExitInfo{Code: &code}
		}
		code := exitErr.ExitCode()
		return ExitInfo{Code: &code}
	}
	// Internal error (e.g. Wait() itself failed): synthesize a uniform
	// terminal event with no code or signal.
	return ExitInfo{}
}

// Write sends bytes to the child's stdin. Writes after Close or after the
// child has exited are dropped silently.
func (h *Handle) Write(p []byte) {
	h.mu.Lock()
	closed, exited := h.closed, h.exited
	h.mu.Unlock()
	if closed || exited {
		return
	}
	_, _ = h.ptm.Write(p)
}

// Resize changes the PTY window size.
func (h *Handle) Resize(cols, rows int) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}
	return pty.Setsize(h.ptm, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Signal delivers one of the three abstract signals Handle.Signal accepts.
func (h *Handle) Signal(sig Signal) error {
	switch sig {
	case SignalInterrupt:
		h.Write([]byte{0x03})
		return nil
	case SignalEOF:
		h.Write([]byte{0x04})
		return nil
	case SignalTerminate:
		if h.cmd.Process == nil {
			return nil
		}
		return h.cmd.Process.Kill()
	default:
		return fmt.Errorf("ptyhost: unknown signal %q", sig)
	}
}

// Close releases the PTY master. Subsequent Writes are dropped.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.ptm.Close()
}

// ProcessId returns the child's PID, or 0 if the process has not started.
func (h *Handle) ProcessId() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
