package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(quietLogger(), nil)
	err := s.Register(context.Background(), "bad", "not a cron spec", func(context.Context) {})
	if err == nil {
		t.Fatal("invalid cron spec accepted")
	}
}

func TestRegisterAcceptsStandardSpecs(t *testing.T) {
	s := New(quietLogger(), nil)
	specs := []string{"10 4 * * *", "*/10 * * * *", "0 */6 * * *"}
	for _, spec := range specs {
		if err := s.Register(context.Background(), "job", spec, func(context.Context) {}); err != nil {
			t.Errorf("spec %q rejected: %v", spec, err)
		}
	}
}

func TestTriggerFires(t *testing.T) {
	s := New(quietLogger(), nil)

	var fired atomic.Int32
	// @every is supported by robfig/cron and keeps the test fast.
	if err := s.Register(context.Background(), "tick", "@every 10ms", func(context.Context) {
		fired.Add(1)
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("trigger never fired")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestStopWaitsForInFlightTrigger(t *testing.T) {
	s := New(quietLogger(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	if err := s.Register(context.Background(), "slow", "@every 10ms", func(context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	s.Start()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never started")
	}

	stopCtx := s.Stop()
	select {
	case <-stopCtx.Done():
		t.Fatal("Stop reported done with a trigger still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never completed after trigger returned")
	}
}
