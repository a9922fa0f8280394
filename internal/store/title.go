package store

import (
	"math/rand"

	"github.com/harborctl/harborctl/internal/tmpl"
)

// titleAdjectives and titleNouns seed the default conversation title
// generator, used when a caller creates a conversation without an explicit
// title for an ad-hoc terminal session. Paired with tmpl.NameFuncs's
// collision-avoiding generator.
var titleAdjectives = []string{"quiet", "bright", "steady", "brisk", "calm", "swift", "amber", "cedar"}
var titleNouns = []string{"harbor", "ridge", "delta", "summit", "cove", "meridian", "atlas", "current"}

// defaultTitle generates a title of the form "<adjective>-<noun>" that does
// not collide with any of existingTitles, using the collision-avoiding
// randomName template function (internal/tmpl).
func defaultTitle(existingTitles []string) string {
	gen := func() string {
		return titleAdjectives[rand.Intn(len(titleAdjectives))] + "-" + titleNouns[rand.Intn(len(titleNouns))]
	}
	fns := tmpl.NameFuncs(gen, existingTitles)
	randomName := fns["randomName"].(func() (string, error))
	name, err := randomName()
	if err != nil {
		// Exhausted retries against an enormous existing set; fall back to an
		// auto-incrementing "session-N" rather than failing the create.
		autoIncrement := fns["autoIncrement"].(func(string) (string, error))
		name, _ = autoIncrement("session")
	}
	return name
}

// collectTitles extracts the Title field from a slice of Conversations, used
// to seed defaultTitle's collision set.
func collectTitles(convs []Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.Title
	}
	return out
}
