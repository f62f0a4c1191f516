package pipeline

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		status      JobStatus
		terminal    bool
		cancellable bool
	}{
		{JobQueued, false, true},
		{JobProcessing, false, true},
		{JobCompleted, true, false},
		{JobFailed, true, false},
		{JobCancelled, true, false},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Cancellable(); got != tt.cancellable {
			t.Errorf("%s.Cancellable() = %v, want %v", tt.status, got, tt.cancellable)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation(ReasonMissingCRS), KindValidation},
		{"transient", Transient(errors.New("timeout"), "upload"), KindTransient},
		{"fatal", Fatal(errors.New("corrupt"), "read"), KindFatal},
		{"cancelled", Cancelled(), KindCancelled},
		{"plain error defaults to internal", errors.New("boom"), KindInternal},
		{"wrapped keeps kind", errors.Wrap(Transient(errors.New("x"), "y"), "outer"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(Transient(context.DeadlineExceeded, "put")) {
		t.Fatal("transient errors must be retriable")
	}
	for _, err := range []error{
		Validation(ReasonEmptyFile),
		Fatal(errors.New("x"), "y"),
		Cancelled(),
		errors.New("plain"),
	} {
		if Retriable(err) {
			t.Fatalf("%v must not be retriable", err)
		}
	}
}

func TestReasonOf(t *testing.T) {
	if got := ReasonOf(Validation(ReasonUnsupportedBands)); got != ReasonUnsupportedBands {
		t.Fatalf("ReasonOf = %q, want %q", got, ReasonUnsupportedBands)
	}
	if got := ReasonOf(errors.New("plain")); got != "" {
		t.Fatalf("ReasonOf(plain) = %q, want empty", got)
	}
}
