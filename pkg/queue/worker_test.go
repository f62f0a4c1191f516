package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

func TestRateLimitPassesThrough(t *testing.T) {
	calls := 0
	h := RateLimit()(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		calls++
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.ProcessTask(ctx, asynq.NewTask(TypeProcessGeoTIFF, nil)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestRateLimitBlockedWaitIsCancellable(t *testing.T) {
	mw := RateLimit()
	h := mw(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		return nil
	}))

	// First call consumes the single burst token.
	warm, warmCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer warmCancel()
	if err := h.ProcessTask(warm, asynq.NewTask(TypeProcessZip, nil)); err != nil {
		t.Fatal(err)
	}

	// The next call has to wait for a token; a dead context must abort
	// it as a cancellation, not run the handler.
	blocked := mw(asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		t.Error("handler must not run with a cancelled context")
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := blocked.ProcessTask(ctx, asynq.NewTask(TypeProcessZip, nil))
	if err == nil {
		t.Fatal("expected error from cancelled wait")
	}
	if kind := pipeline.KindOf(err); kind != pipeline.KindCancelled {
		t.Fatalf("error kind = %s, want %s", kind, pipeline.KindCancelled)
	}
}

func TestDropTaskSkipsRetryAndKeepsKind(t *testing.T) {
	// A cancelled task must not be redelivered; the claim guard would
	// reject every retry anyway.
	err := dropTask(pipeline.Cancelled())
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatal("dropped task does not carry SkipRetry")
	}
	if kind := pipeline.KindOf(err); kind != pipeline.KindCancelled {
		t.Fatalf("error kind = %s, want %s", kind, pipeline.KindCancelled)
	}
}

func TestNewSchedulerRegisters(t *testing.T) {
	// Registration is local; nothing connects until Run.
	if _, err := NewScheduler("redis://localhost:6379/0"); err != nil {
		t.Fatal(err)
	}
}

func TestNewServerRejectsBadBroker(t *testing.T) {
	if _, err := NewServer("not a uri", 1, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed broker url")
	}
}

func TestNewServerRejectsUnknownQueue(t *testing.T) {
	if _, err := NewServer("redis://localhost:6379/0", 1, []string{"bogus"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown queue name")
	}
}
