// Package broker implements the Session Broker: it wraps one
// ptyhost.Handle, stamps each output chunk with a monotonic cursor, keeps
// a bounded backlog, and fans output out to N attachments with
// replay-on-late-attach semantics.
package broker

import (
	"sync"

	"github.com/harborctl/harborctl/internal/ptyhost"
)

// DefaultMaxBacklogBytes is the default backlog byte cap.
const DefaultMaxBacklogBytes = 256 * 1024

// Chunk is one cursor-stamped slice of PTY output.
type Chunk struct {
	Cursor uint64
	Data   []byte
}

// Handlers is the callback set an attachment registers.
type Handlers struct {
	OnData func(Chunk)
	OnExit func(ptyhost.ExitInfo)
}

type attachment struct {
	id       uint64
	handlers Handlers
}

// Broker owns the backlog and attachment set for one live session.
type Broker struct {
	mu              sync.Mutex
	handle          *ptyhost.Handle
	nextCursor      uint64
	backlog         []Chunk
	backlogBytes    int
	maxBacklogBytes int
	attachments     []*attachment
	nextAttachID    uint64
	exited          bool
	exitInfo        ptyhost.ExitInfo
}

// New wraps handle with a broker enforcing maxBacklogBytes (0 means use
// DefaultMaxBacklogBytes). The broker registers itself as the handle's
// data/exit callbacks; callers must not also register their own.
func New(handle *ptyhost.Handle, maxBacklogBytes int) *Broker {
	if maxBacklogBytes <= 0 {
		maxBacklogBytes = DefaultMaxBacklogBytes
	}
	b := &Broker{
		handle:          handle,
		nextCursor:      1,
		maxBacklogBytes: maxBacklogBytes,
	}
	handle.OnData(b.handleData)
	handle.OnExit(b.handleExit)
	return b
}

// Handle returns the underlying PTY handle so callers can write/resize/
// signal it directly; the broker does not intermediate writes.
func (b *Broker) Handle() *ptyhost.Handle { return b.handle }

func (b *Broker) handleData(data []byte) {
	b.mu.Lock()
	cursor := b.nextCursor
	b.nextCursor++
	chunk := Chunk{Cursor: cursor, Data: data}
	b.appendBacklog(chunk)
	attachments := append([]*attachment(nil), b.attachments...)
	b.mu.Unlock()

	for _, a := range attachments {
		if a.handlers.OnData != nil {
			a.handlers.OnData(chunk)
		}
	}
}

func (b *Broker) handleExit(info ptyhost.ExitInfo) {
	b.mu.Lock()
	b.exited = true
	b.exitInfo = info
	attachments := append([]*attachment(nil), b.attachments...)
	b.mu.Unlock()

	for _, a := range attachments {
		if a.handlers.OnExit != nil {
			a.handlers.OnExit(info)
		}
	}
}

// appendBacklog stores chunk and evicts the oldest entries FIFO until the
// total is within maxBacklogBytes. A single chunk larger than the cap is
// truncated from its head before storage so the unconsumed tail of a fresh
// chunk is never evicted.
func (b *Broker) appendBacklog(chunk Chunk) {
	if len(chunk.Data) > b.maxBacklogBytes {
		trim := len(chunk.Data) - b.maxBacklogBytes
		chunk.Data = chunk.Data[trim:]
	}
	b.backlog = append(b.backlog, chunk)
	b.backlogBytes += len(chunk.Data)
	for b.backlogBytes > b.maxBacklogBytes && len(b.backlog) > 0 {
		evicted := b.backlog[0]
		b.backlog = b.backlog[1:]
		b.backlogBytes -= len(evicted.Data)
	}
}

// Attach subscribes handlers, replaying every backlog entry with
// cursor > sinceCursor in cursor order; if exit was already observed, the
// exit record is delivered immediately after the replay.
// Returns an attachment id for Detach.
func (b *Broker) Attach(handlers Handlers, sinceCursor uint64) uint64 {
	b.mu.Lock()
	id := b.nextAttachID
	b.nextAttachID++
	a := &attachment{id: id, handlers: handlers}
	b.attachments = append(b.attachments, a)

	var replay []Chunk
	for _, c := range b.backlog {
		if c.Cursor > sinceCursor {
			replay = append(replay, c)
		}
	}
	exited, info := b.exited, b.exitInfo
	b.mu.Unlock()

	if handlers.OnData != nil {
		for _, c := range replay {
			handlers.OnData(c)
		}
	}
	if exited && handlers.OnExit != nil {
		handlers.OnExit(info)
	}
	return id
}

// Detach removes the attachment. In-flight callbacks already dispatched
// still complete (we don't interrupt a callback in progress; we simply
// stop delivering future events to it).
func (b *Broker) Detach(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, a := range b.attachments {
		if a.id == id {
			b.attachments = append(b.attachments[:i], b.attachments[i+1:]...)
			return
		}
	}
}

// LatestCursor returns nextCursor-1, i.e. the cursor of the most recently
// produced chunk (0 if none yet).
func (b *Broker) LatestCursor() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextCursor - 1
}

// BacklogBytes reports the current total backlog size, for tests asserting
// the ∑len(chunk) ≤ MaxBacklogBytes invariant.
func (b *Broker) BacklogBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlogBytes
}

// Exited reports whether the PTY exit has already been observed.
func (b *Broker) Exited() (ptyhost.ExitInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitInfo, b.exited
}
