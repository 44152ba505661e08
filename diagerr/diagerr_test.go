package diagerr

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapAndKindOf(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(DataError, "sess-1", "clustering", base)

	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("expected KindOf to find a diagerr.Error")
	}
	if kind != DataError {
		t.Fatalf("expected DataError, got %v", kind)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected Unwrap chain to reach base error")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(DataError, "s", "stage", nil) != nil {
		t.Fatalf("expected Wrap(nil) to return nil")
	}
}

func TestFatalOnlyForConfigError(t *testing.T) {
	cases := []struct {
		kind  Kind
		fatal bool
	}{
		{ConfigError, true},
		{DataError, false},
		{RecoverableAnomaly, false},
		{InvariantViolation, false},
	}
	for _, c := range cases {
		err := Wrap(c.kind, "", "stage", errors.New("x"))
		if got := Fatal(err); got != c.fatal {
			t.Errorf("Fatal(%v) = %v, want %v", c.kind, got, c.fatal)
		}
	}
}

func TestKindOfUnrelatedError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("expected KindOf to report false for a non-diagerr error")
	}
}

func TestErrorMessageIncludesSession(t *testing.T) {
	err := Wrap(InvariantViolation, "sess-7", "intervals.merge", errors.New("unsorted range"))
	msg := err.Error()
	if !strings.Contains(msg, "sess-7") {
		t.Fatalf("expected message to include the session id, got %q", msg)
	}
}
