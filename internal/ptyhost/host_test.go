package ptyhost

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestStart_RunCapturesOutputAndExitCode(t *testing.T) {
	h, err := Start("/bin/echo", []string{"hello"}, nil, "", 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var mu sync.Mutex
	var out strings.Builder
	exitCh := make(chan ExitInfo, 1)
	h.OnData(func(p []byte) {
		mu.Lock()
		out.Write(p)
		mu.Unlock()
	})
	h.OnExit(func(info ExitInfo) { exitCh <- info })

	go h.Run()

	select {
	case info := <-exitCh:
		if info.Code == nil || *info.Code != 0 {
			t.Fatalf("expected clean exit code 0, got %+v", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	mu.Lock()
	got := out.String()
	mu.Unlock()
	if !strings.Contains(got, "hello") {
		t.Fatalf("expected output to contain %q, got %q", "hello", got)
	}
}

func TestHandle_WriteAfterCloseIsDropped(t *testing.T) {
	h, err := Start("/bin/cat", nil, nil, "", 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	exitCh := make(chan ExitInfo, 1)
	h.OnExit(func(info ExitInfo) { exitCh <- info })
	go h.Run()

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Must not panic or block once closed.
	h.Write([]byte("should be dropped\n"))

	select {
	case <-exitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit after close")
	}
}

func TestHandle_SignalTerminateKillsProcess(t *testing.T) {
	h, err := Start("/bin/sleep", []string{"30"}, nil, "", 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	exitCh := make(chan ExitInfo, 1)
	h.OnExit(func(info ExitInfo) { exitCh <- info })
	go h.Run()

	if h.ProcessId() <= 0 {
		t.Fatalf("expected positive PID, got %d", h.ProcessId())
	}

	if err := h.Signal(SignalTerminate); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	select {
	case info := <-exitCh:
		if info.SignalName == nil && (info.Code == nil || *info.Code == 0) {
			t.Fatalf("expected a non-clean exit after SIGKILL, got %+v", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit after terminate signal")
	}
}

func TestHandle_ResizeAfterCloseIsNoop(t *testing.T) {
	h, err := Start("/bin/cat", nil, nil, "", 80, 24)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	go h.Run()
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Resize(100, 40); err != nil {
		t.Fatalf("expected Resize after Close to be a no-op, got error: %v", err)
	}
}
