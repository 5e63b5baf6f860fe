package cerrs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{Validationf("bad input %d", 7), "validation"},
		{Authorizationf("nope"), "authorization"},
		{NotFoundf("message %s", "x"), "not_found"},
		{Statef("already ended"), "state"},
		{Cryptof("bad blob"), "crypto"},
		{errors.New("plain"), "internal"},
		{nil, "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSentinelSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", Statef("call %s already ended", "c1"))
	if !errors.Is(err, ErrState) {
		t.Fatalf("wrapped sentinel lost: %v", err)
	}
	if Kind(err) != "state" {
		t.Fatalf("Kind = %q", Kind(err))
	}
}
