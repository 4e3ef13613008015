package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New(KindNotFound, "no such container"),
			want: "no such container",
		},
		{
			name: "stage prefix",
			err:  Wrap(KindBootstrapFailed, "bootstrap_rootfs", nil, "debootstrap exited 1"),
			want: "bootstrap_rootfs: debootstrap exited 1",
		},
		{
			name: "stage and cause",
			err:  Wrap(KindHostError, "start", errors.New("no such binary"), "cannot run machinectl"),
			want: "start: cannot run machinectl: no such binary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := Newf(KindRuleConflict, "host port %d already forwarded", 8080)
	if got := KindOf(err); got != KindRuleConflict {
		t.Errorf("KindOf() = %q, want %q", got, KindRuleConflict)
	}

	wrapped := fmt.Errorf("adding rule: %w", err)
	if got := KindOf(wrapped); got != KindRuleConflict {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindRuleConflict)
	}

	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(New(KindNotFound, "x")) {
		t.Error("IsNotFound() = false for NotFound error")
	}
	if !IsConflict(New(KindNameConflict, "x")) || !IsConflict(New(KindRuleConflict, "x")) {
		t.Error("IsConflict() = false for conflict kinds")
	}
	if !IsTimeout(New(KindTimeout, "x")) {
		t.Error("IsTimeout() = false for Timeout error")
	}
	if IsNotFound(New(KindTimeout, "x")) {
		t.Error("IsNotFound() = true for Timeout error")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindDeleteFailed, "", cause, "rm failed")
	if !errors.Is(err, cause) {
		t.Error("errors.Is() cannot reach the wrapped cause")
	}
}
