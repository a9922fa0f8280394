package streamserver

import "sync"

// DefaultRetentionSize bounds how many observed events the bus retains for
// afterCursor replay. The retention horizon isn't otherwise documented, so we
// fix an explicit bound and surface gaps to clients rather than guess intent.
const DefaultRetentionSize = 20000

// publishedEvent is one entry in the bus's global retained log.
type publishedEvent struct {
	cursor    uint64
	kind      string
	sessionID string
	data      map[string]any
}

// Filters restricts a subscription to a subset of observed events. An empty
// slice in any field means "no restriction on that dimension".
type Filters struct {
	SessionIDs []string
	EventKinds []string
}

func (f Filters) match(kind, sessionID string) bool {
	if len(f.EventKinds) > 0 && !contains(f.EventKinds, kind) {
		return false
	}
	if len(f.SessionIDs) > 0 && !contains(f.SessionIDs, sessionID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// EventBus assigns the process-wide monotonic cursor to every
// observed event, retains a bounded tail for afterCursor replay, and fans
// each event out to every registered subscription whose filters match.
type EventBus struct {
	mu            sync.Mutex
	nextCursor    uint64
	retentionSize int
	log           []publishedEvent
	subs          map[string]*subscription
}

// NewEventBus creates a bus retaining up to retentionSize events (0 means
// DefaultRetentionSize).
func NewEventBus(retentionSize int) *EventBus {
	if retentionSize <= 0 {
		retentionSize = DefaultRetentionSize
	}
	return &EventBus{
		nextCursor:    1,
		retentionSize: retentionSize,
		subs:          make(map[string]*subscription),
	}
}

// Publish assigns the next cursor to (kind, sessionID, data), retains it,
// and delivers it to every subscription whose filters match, respecting
// includeOutput (session-output is delivered only to subscriptions that
// opted in).
func (b *EventBus) Publish(kind, sessionID string, data map[string]any) uint64 {
	b.mu.Lock()
	cursor := b.nextCursor
	b.nextCursor++
	ev := publishedEvent{cursor: cursor, kind: kind, sessionID: sessionID, data: data}
	b.log = append(b.log, ev)
	if len(b.log) > b.retentionSize {
		b.log = b.log[len(b.log)-b.retentionSize:]
	}
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if kind == "session-output" && !s.includeOutput {
			continue
		}
		if !s.filters.match(kind, sessionID) {
			continue
		}
		s.enqueue(queuedEvent{cursor: ev.cursor, kind: ev.kind, sessionID: ev.sessionID, data: ev.data})
	}
	return cursor
}

// subscribeResult carries the ack for stream.subscribe: whether the
// requested afterCursor fell below the retained horizon.
type subscribeResult struct {
	subscriptionID string
	gap            bool
}

// Subscribe registers a new subscription delivering to deliver, replaying
// retained events with cursor > afterCursor that match filters first.
func (b *EventBus) Subscribe(id string, filters Filters, includeOutput bool, afterCursor uint64, deliver func(outEnvelope)) subscribeResult {
	s := newSubscription(id, filters, includeOutput, deliver)

	b.mu.Lock()
	gap := false
	if afterCursor > 0 && len(b.log) > 0 && b.log[0].cursor > afterCursor+1 {
		gap = true
	}
	var replay []publishedEvent
	for _, ev := range b.log {
		if ev.cursor > afterCursor {
			replay = append(replay, ev)
		}
	}
	b.subs[id] = s
	b.mu.Unlock()

	go s.run()
	for _, ev := range replay {
		if ev.kind == "session-output" && !includeOutput {
			continue
		}
		if !filters.match(ev.kind, ev.sessionID) {
			continue
		}
		s.enqueue(queuedEvent{cursor: ev.cursor, kind: ev.kind, sessionID: ev.sessionID, data: ev.data})
	}
	return subscribeResult{subscriptionID: id, gap: gap}
}

// Unsubscribe stops and removes a subscription.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		s.stop()
	}
}

// UnsubscribeAll stops every subscription registered by a closing
// connection.
func (b *EventBus) UnsubscribeAll(ids []string) {
	for _, id := range ids {
		b.Unsubscribe(id)
	}
}
