package streamserver

import (
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T, n int, timeout time.Duration) (func(outEnvelope), func() []outEnvelope) {
	t.Helper()
	var mu sync.Mutex
	var got []outEnvelope
	done := make(chan struct{})
	closeOnce := sync.Once{}
	deliver := func(ev outEnvelope) {
		mu.Lock()
		got = append(got, ev)
		reached := len(got) >= n
		mu.Unlock()
		if reached {
			closeOnce.Do(func() { close(done) })
		}
	}
	wait := func() []outEnvelope {
		select {
		case <-done:
		case <-time.After(timeout):
		}
		mu.Lock()
		defer mu.Unlock()
		out := make([]outEnvelope, len(got))
		copy(out, got)
		return out
	}
	return deliver, wait
}

func TestEventBus_PublishAssignsMonotonicCursors(t *testing.T) {
	b := NewEventBus(0)
	c1 := b.Publish("session-started", "s1", nil)
	c2 := b.Publish("session-completed", "s1", nil)
	if c1 != 1 || c2 != 2 {
		t.Fatalf("expected cursors 1,2 got %d,%d", c1, c2)
	}
}

func TestEventBus_SubscribeFiltersByKindAndSession(t *testing.T) {
	b := NewEventBus(0)
	deliver, wait := collect(t, 1, time.Second)
	b.Subscribe("sub1", Filters{EventKinds: []string{"session-completed"}, SessionIDs: []string{"s2"}}, false, 0, deliver)

	b.Publish("session-started", "s2", nil)
	b.Publish("session-completed", "s1", nil)
	b.Publish("session-completed", "s2", map[string]any{"ok": true})

	got := wait()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(got))
	}
	if got[0].Event != "session-completed" || got[0].SessionID != "s2" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestEventBus_SessionOutputRequiresIncludeOutput(t *testing.T) {
	b := NewEventBus(0)
	deliver, wait := collect(t, 1, 200*time.Millisecond)
	b.Subscribe("sub1", Filters{}, false, 0, deliver)

	b.Publish("session-output", "s1", map[string]any{"chunk": "hi"})
	b.Publish("session-completed", "s1", nil)

	got := wait()
	if len(got) != 1 || got[0].Event != "session-completed" {
		t.Fatalf("expected only session-completed delivered, got %+v", got)
	}
}

func TestEventBus_SubscribeReplaysRetainedEventsAfterCursor(t *testing.T) {
	b := NewEventBus(0)
	b.Publish("session-started", "s1", nil)
	b.Publish("session-needs-input", "s1", nil)
	b.Publish("session-completed", "s1", nil)

	deliver, wait := collect(t, 2, time.Second)
	res := b.Subscribe("sub1", Filters{}, true, 1, deliver)
	if res.gap {
		t.Fatalf("expected no gap replaying within retained horizon")
	}

	got := wait()
	if len(got) != 2 {
		t.Fatalf("expected 2 replayed events (cursor>1), got %d", len(got))
	}
	if got[0].Cursor != 2 || got[1].Cursor != 3 {
		t.Fatalf("expected cursors 2,3 in order, got %d,%d", got[0].Cursor, got[1].Cursor)
	}
}

func TestEventBus_SubscribeReportsGapBelowRetentionHorizon(t *testing.T) {
	b := NewEventBus(2)
	b.Publish("a", "s1", nil)
	b.Publish("b", "s1", nil)
	b.Publish("c", "s1", nil)
	b.Publish("d", "s1", nil)

	deliver, _ := collect(t, 0, 50*time.Millisecond)
	res := b.Subscribe("sub1", Filters{}, true, 1, deliver)
	if !res.gap {
		t.Fatalf("expected gap flag set when afterCursor falls below retained horizon")
	}
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewEventBus(0)
	deliver, _ := collect(t, 0, 50*time.Millisecond)
	b.Subscribe("sub1", Filters{}, true, 0, deliver)
	b.Unsubscribe("sub1")

	b.mu.Lock()
	_, stillPresent := b.subs["sub1"]
	b.mu.Unlock()
	if stillPresent {
		t.Fatalf("expected subscription removed from bus after Unsubscribe")
	}
}

func TestFilters_MatchEmptyMeansUnrestricted(t *testing.T) {
	var f Filters
	if !f.match("anything", "any-session") {
		t.Fatalf("empty Filters should match everything")
	}
}
