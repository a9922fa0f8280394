package store

import "testing"

func TestDefaultTitle_AvoidsCollisions(t *testing.T) {
	existing := []string{"quiet-harbor", "quiet-ridge"}
	title := defaultTitle(existing)
	if title == "" {
		t.Fatal("expected a non-empty generated title")
	}
	for _, e := range existing {
		if title == e {
			t.Fatalf("expected generated title to avoid existing titles, got %q", title)
		}
	}
}

func TestDefaultTitle_FallsBackToAutoIncrementWhenExhausted(t *testing.T) {
	existing := make([]string, 0, len(titleAdjectives)*len(titleNouns))
	for _, a := range titleAdjectives {
		for _, n := range titleNouns {
			existing = append(existing, a+"-"+n)
		}
	}
	title := defaultTitle(existing)
	if title != "session-1" {
		t.Fatalf("expected autoIncrement fallback session-1, got %q", title)
	}
}

func TestCollectTitles(t *testing.T) {
	convs := []Conversation{{Title: "a"}, {Title: "b"}}
	got := collectTitles(convs)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected titles: %v", got)
	}
}
