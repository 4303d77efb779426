package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationWrapsSentinel(t *testing.T) {
	err := fmt.Errorf("agent: %w", Validation("url is required"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("errors.Is(%v, ErrValidation) = false", err)
	}
	if err.Error() != "agent: url is required" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{NotFound("note 7 not found"), true},
		{fmt.Errorf("store: %w", ErrNotFound), true},
		{Validation("bad"), true},
		{ErrAuthRequired, true},
		{ErrUpstream, false},
		{errors.New("connection reset"), false},
	}
	for _, c := range cases {
		if got := IsPermanent(c.err); got != c.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
