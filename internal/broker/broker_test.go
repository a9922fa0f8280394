package broker

import (
	"testing"

	"github.com/harborctl/harborctl/internal/ptyhost"
)

// fakeHandle lets tests drive data/exit callbacks without a real PTY.
type fakeHandle struct {
	onData func([]byte)
	onExit func(ptyhost.ExitInfo)
}

func newFakeBroker(maxBacklogBytes int) (*Broker, *fakeHandle) {
	fh := &fakeHandle{}
	h := &ptyhost.Handle{}
	h.OnData(func(d []byte) { fh.onData(d) })
	h.OnExit(func(i ptyhost.ExitInfo) { fh.onExit(i) })
	b := New(h, maxBacklogBytes)
	return b, fh
}

// This test exercises the broker's own handleData/handleExit entry points
// directly rather than through a real PTY read loop, since those are the
// callbacks ptyhost.Handle invokes.
func TestBasicFanOut(t *testing.T) {
	b, _ := newFakeBroker(0)

	var a1Chunks []Chunk
	a1 := b.Attach(Handlers{OnData: func(c Chunk) { a1Chunks = append(a1Chunks, c) }}, 0)

	b.handleData([]byte("hi\n"))

	if len(a1Chunks) != 1 || a1Chunks[0].Cursor != 1 || string(a1Chunks[0].Data) != "hi\n" {
		t.Fatalf("unexpected a1 chunks: %+v", a1Chunks)
	}

	var a2Chunks []Chunk
	b.Attach(Handlers{OnData: func(c Chunk) { a2Chunks = append(a2Chunks, c) }}, 0)
	if len(a2Chunks) != 1 || a2Chunks[0].Cursor != 1 {
		t.Fatalf("unexpected a2 chunks: %+v", a2Chunks)
	}

	var a1Exit, a2Exit *ptyhost.ExitInfo
	b.Detach(a1)
	a1 = b.Attach(Handlers{OnExit: func(i ptyhost.ExitInfo) { a1Exit = &i }}, b.LatestCursor())
	b.Attach(Handlers{OnExit: func(i ptyhost.ExitInfo) { a2Exit = &i }}, b.LatestCursor())

	zero := 0
	b.handleExit(ptyhost.ExitInfo{Code: &zero})

	if a1Exit == nil || a1Exit.Code == nil || *a1Exit.Code != 0 {
		t.Fatalf("a1 did not observe exit: %+v", a1Exit)
	}
	if a2Exit == nil || a2Exit.Code == nil || *a2Exit.Code != 0 {
		t.Fatalf("a2 did not observe exit: %+v", a2Exit)
	}
	_ = a1
}

func TestBacklogTrim(t *testing.T) {
	b, _ := newFakeBroker(8)

	b.handleData([]byte("aaaa"))
	b.handleData([]byte("bbbb"))
	b.handleData([]byte("cccc"))

	var got []Chunk
	b.Attach(Handlers{OnData: func(c Chunk) { got = append(got, c) }}, 0)

	if len(got) != 2 {
		t.Fatalf("expected 2 surviving chunks, got %d: %+v", len(got), got)
	}
	if got[0].Cursor != 2 || string(got[0].Data) != "bbbb" {
		t.Fatalf("unexpected first surviving chunk: %+v", got[0])
	}
	if got[1].Cursor != 3 || string(got[1].Data) != "cccc" {
		t.Fatalf("unexpected second surviving chunk: %+v", got[1])
	}
	if b.LatestCursor() != 3 {
		t.Fatalf("LatestCursor() = %d, want 3", b.LatestCursor())
	}
	if b.BacklogBytes() > 8 {
		t.Fatalf("backlog bytes %d exceeds cap", b.BacklogBytes())
	}
}

func TestAttachAfterExitReplaysBacklogThenExit(t *testing.T) {
	b, _ := newFakeBroker(0)
	b.handleData([]byte("x"))
	one := 1
	b.handleExit(ptyhost.ExitInfo{Code: &one})

	var data []Chunk
	var exit *ptyhost.ExitInfo
	b.Attach(Handlers{
		OnData: func(c Chunk) { data = append(data, c) },
		OnExit: func(i ptyhost.ExitInfo) { exit = &i },
	}, 0)

	if len(data) != 1 {
		t.Fatalf("expected backlog replay, got %+v", data)
	}
	if exit == nil || exit.Code == nil || *exit.Code != 1 {
		t.Fatalf("expected exit delivered after replay, got %+v", exit)
	}
}
