package syncerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want Kind
	}{
		{"Nil", nil, Unknown},
		{"Plain", errors.New("boom"), Unknown},
		{"Remote", Remotef("kanboard.getTask", "HTTP %d", 502), Remote},
		{"Wrapped", fmt.Errorf("create task: %w", LookupMissf("kanboard.getColumns", "no column %q", "Done")), LookupMiss},
		{"Auth", E(Auth, "webhook", nil), Auth},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("db gone"), true},
		{E(Remote, "op", context.DeadlineExceeded), true},
		{E(LookupMiss, "op", nil), true},
		{E(Auth, "op", nil), false},
		{E(Validation, "op", errors.New("bad json")), false},
	} {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	err := E(Remote, "osticket.setStatus", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is to see the wrapped cause")
	}
	if got := err.Error(); got != "osticket.setStatus: context deadline exceeded" {
		t.Errorf("Error() = %q", got)
	}
	if got := E(Auth, "webhook", nil).Error(); got != "webhook: auth" {
		t.Errorf("Error() without cause = %q", got)
	}
	if !Is(err, Remote) || Is(err, Auth) {
		t.Error("Is() mismatch")
	}
}
