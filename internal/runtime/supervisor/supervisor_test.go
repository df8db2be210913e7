package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGoCapturesFirstErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want wrapped %v", err, boom)
	}
	if s.Context().Err() == nil {
		t.Fatal("expected supervisor context cancelled after first error")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic in panicky") {
		t.Fatalf("Wait = %v, want panic error", err)
	}
}

func TestCanceledExitIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	for i := 0; i < 3; i++ {
		s.Go0("worker", func(ctx context.Context) { <-ctx.Done() })
	}

	c := s.Counters()
	if c.Started != 3 || c.Active != 3 {
		t.Fatalf("Counters = %+v, want started=3 active=3", c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if c := s.Counters(); c.Active != 0 {
		t.Fatalf("Active = %d after Stop, want 0", c.Active)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	defer close(release)
	s.Go0("stuck", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
}
