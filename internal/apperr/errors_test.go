package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindConflict, "macros.create", "name_taken", cause)

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict sentinel to match")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("validation sentinel should not match a conflict")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
	if err.Error() != "macros.create.name_taken: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestKindOfAndCodeOfUnwrapChains(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindValidation, "commands.save", "empty_text", nil))

	if KindOf(err) != KindValidation {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if CodeOf(err) != "commands.save.empty_text" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("plain errors should classify as internal")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors should have no code")
	}
}
