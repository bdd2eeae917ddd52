package framesync_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"initialization", errors.Wrap(framesync.ErrInitialization, "create queue"), true},
		{"submission", framesync.ErrSubmission, true},
		{"device lost", errors.Wrapf(framesync.ErrDeviceLost, "slot %d", 1), true},
		{"marked cause", errors.Mark(errors.New("E_OUTOFMEMORY"), framesync.ErrInitialization), true},
		{"timeout", errors.Wrap(framesync.ErrWaitTimeout, "fence"), false},
		{"unsupported", framesync.ErrUnsupported, false},
		{"closed", framesync.ErrClosed, false},
		{"assertion", errors.AssertionFailedf("unexpected slot state"), true},
		{"unrelated", errors.New("other"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := framesync.IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestLogicViolationKeepsSentinel(t *testing.T) {
	r := framesync.NewResource(nil, framesync.StatePresent, "bb")
	_, err := r.TransitionTo(framesync.StatePresent)
	if !errors.Is(err, framesync.ErrRedundantTransition) {
		t.Fatalf("err = %v, want ErrRedundantTransition", err)
	}
	if !framesync.IsLogicViolation(err) {
		t.Error("IsLogicViolation = false")
	}
	if framesync.IsLogicViolation(framesync.ErrWaitTimeout) {
		t.Error("plain sentinel reported as logic violation")
	}
}
