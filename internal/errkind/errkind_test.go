package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(Persistence, "store.create", base))

	if KindOf(err) != Persistence {
		t.Fatalf("expected persistence, got %s", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
	if !Is(err, Persistence) || Is(err, Transport) {
		t.Fatalf("unexpected Is result for %v", err)
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	t.Parallel()

	if err := Wrap(Transport, "op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if KindOf(nil) != Unknown {
		t.Fatalf("expected unknown for nil")
	}
}

func TestMessageFallback(t *testing.T) {
	t.Parallel()

	if got := Message(New(Validation, "flow", "code must be digits"), "x"); got != "code must be digits" {
		t.Fatalf("expected message, got %q", got)
	}
	if got := Message(errors.New("plain"), "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
