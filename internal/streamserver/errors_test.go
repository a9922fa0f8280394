package streamserver

import (
	"fmt"
	"testing"

	"github.com/harborctl/harborctl/internal/coordinator"
	"github.com/harborctl/harborctl/internal/store"
)

func TestClassifyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"store not found", store.ErrNotFound, kindNotFound},
		{"store conflict", store.ErrConflict, kindConflict},
		{"store invalid transition", store.ErrInvalidTransition, kindInvalid},
		{"controller conflict", &coordinator.ErrControllerConflict{SessionID: "s1", CurrentLabel: "a"}, kindConflict},
		{"caller conflict", &coordinator.ErrConflict{SessionID: "s1", Caller: "b", Owner: "a"}, kindConflict},
		{"entity not found", notFound("session"), kindNotFound},
		{"coordinator session not found", coordinator.ErrNotFoundSession, kindNotFound},
		{"invalid arg", invalidf("bad cols %d", -1), kindInvalid},
		{"wrapped store not found", fmt.Errorf("wrap: %w", store.ErrNotFound), kindNotFound},
		{"unknown", fmt.Errorf("boom"), kindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyErr(tc.err); got != tc.want {
				t.Fatalf("classifyErr(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestNotFound_ErrorMessage(t *testing.T) {
	err := notFound("session")
	if err.Error() != "session not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
