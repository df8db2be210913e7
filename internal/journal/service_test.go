package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"schedkit/pkg/clockx"
	logx "schedkit/pkg/logx"
	"schedkit/pkg/sched"
)

func TestServiceRecordsSchedulerOutcomes(t *testing.T) {
	ctx := context.Background()
	scheduler := sched.New(sched.Config{}, logx.Nop(), sched.WithClock(clockx.NewVirtual()))
	driver, err := sched.NewVirtualDriver(scheduler)
	if err != nil {
		t.Fatalf("NewVirtualDriver: %v", err)
	}

	store, err := Open(Config{Driver: "memory", Capacity: 16}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	svc := NewService(store, scheduler, logx.Nop())
	svc.Start(ctx)

	if _, err := scheduler.After(time.Second, func(context.Context) error { return nil },
		sched.WithLabel("ok")); err != nil {
		t.Fatalf("After: %v", err)
	}
	cancelled, err := scheduler.After(2*time.Second, func(context.Context) error { return nil },
		sched.WithLabel("never"))
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	cancelled.Cancel()

	if _, err := driver.Advance(ctx, 5); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Stop drains the buffered events before returning.
	svc.Stop(ctx)
	svc.Stop(ctx) // idempotent

	snap := svc.Snapshot()
	if snap.Appended != 2 {
		t.Fatalf("appended = %d, want 2", snap.Appended)
	}
	if snap.Failed != 0 {
		t.Fatalf("failed = %d, want 0", snap.Failed)
	}

	entries, err := svc.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(entries))
	}
	if entries[0].Type != string(sched.EventExecuted) || entries[0].Label != "ok" {
		t.Fatalf("first entry = %+v, want executed/ok", entries[0])
	}
	if entries[0].Kind != "once" || entries[0].DueMicros != 1_000_000 {
		t.Fatalf("first entry = %+v, want kind once due 1000000", entries[0])
	}
	if entries[1].Type != string(sched.EventDiscarded) || entries[1].Label != "never" {
		t.Fatalf("second entry = %+v, want discarded/never", entries[1])
	}
}

func TestServiceDisabledIsNoop(t *testing.T) {
	scheduler := sched.New(sched.Config{}, logx.Nop(), sched.WithClock(clockx.NewVirtual()))
	svc := NewService(nil, scheduler, logx.Nop())

	if svc.Enabled() {
		t.Fatalf("Enabled = true with no store")
	}
	svc.Start(context.Background())
	svc.Stop(context.Background())

	if _, err := svc.Recent(context.Background(), 5); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Recent err = %v, want ErrDisabled", err)
	}
	if snap := svc.Snapshot(); snap.Enabled || snap.Appended != 0 {
		t.Fatalf("snapshot = %+v, want disabled and empty", snap)
	}
}
