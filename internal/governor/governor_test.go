package governor

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move the day boundary deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func startActor(t *testing.T, store StateStore, clock *fakeClock) *Actor {
	t.Helper()
	actor := New(store, clock, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = actor.Run(ctx)
	}()
	return actor
}

func TestAcquireRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := actor.Acquire(ctx, 30, 3, 600)
		if err != nil {
			t.Fatalf("Acquire #%d error = %v", i, err)
		}
		if !res.OK {
			t.Fatalf("Acquire #%d denied: %s", i, res.Reason)
		}
	}

	res, err := actor.Acquire(ctx, 30, 3, 600)
	if err != nil {
		t.Fatalf("Acquire error = %v", err)
	}
	if res.OK || res.Reason != ReasonConcurrencyLimit {
		t.Fatalf("expected concurrency denial, got %+v", res)
	}
	if res.Running != 3 {
		t.Fatalf("running = %d, want 3", res.Running)
	}

	// Releasing one slot re-opens acquisition.
	if _, err := actor.Release(ctx); err != nil {
		t.Fatalf("Release error = %v", err)
	}
	res, err = actor.Acquire(ctx, 30, 3, 600)
	if err != nil || !res.OK {
		t.Fatalf("expected grant after release, got %+v err=%v", res, err)
	}
}

func TestAcquireRespectsDailyBudget(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	// Burn the budget down to 580 used seconds.
	if _, err := actor.AddSeconds(ctx, 580); err != nil {
		t.Fatalf("AddSeconds error = %v", err)
	}

	// 580 + 30 > 600: denied even though a slot is free.
	res, err := actor.Acquire(ctx, 30, 3, 600)
	if err != nil {
		t.Fatalf("Acquire error = %v", err)
	}
	if res.OK || res.Reason != ReasonDailyBudgetExhausted {
		t.Fatalf("expected budget denial, got %+v", res)
	}

	// 580 + 20 == 600: exactly at the limit is allowed.
	res, err = actor.Acquire(ctx, 20, 3, 600)
	if err != nil || !res.OK {
		t.Fatalf("expected grant at exact budget, got %+v err=%v", res, err)
	}
	if res.DailySeconds != 600 {
		t.Fatalf("dailySeconds = %d, want 600", res.DailySeconds)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	running, err := actor.Release(ctx)
	if err != nil {
		t.Fatalf("Release error = %v", err)
	}
	if running != 0 {
		t.Fatalf("running = %d, want 0", running)
	}
}

func TestDayRolloverResetsBudgetNotRunning(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	res, err := actor.Acquire(ctx, 590, 3, 600)
	if err != nil || !res.OK {
		t.Fatalf("setup acquire failed: %+v err=%v", res, err)
	}

	// Same day: budget exhausted.
	res, err = actor.Acquire(ctx, 30, 3, 600)
	if err != nil || res.OK {
		t.Fatalf("expected denial before midnight, got %+v err=%v", res, err)
	}

	// Cross midnight UTC: budget resets, the held slot does not.
	clock.Set(time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC))

	snap, err := actor.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if snap.DailySeconds != 0 {
		t.Fatalf("dailySeconds = %d after rollover, want 0", snap.DailySeconds)
	}
	if snap.Running != 1 {
		t.Fatalf("running = %d after rollover, want 1 (slots survive rollover)", snap.Running)
	}
	if snap.DayKey != "2026-03-11" {
		t.Fatalf("dayKey = %q", snap.DayKey)
	}

	res, err = actor.Acquire(ctx, 30, 3, 600)
	if err != nil || !res.OK {
		t.Fatalf("expected grant after rollover, got %+v err=%v", res, err)
	}
}

func TestAddSecondsOvershootAccepted(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	res, err := actor.Acquire(ctx, 30, 3, 600)
	if err != nil || !res.OK {
		t.Fatalf("acquire failed: %+v err=%v", res, err)
	}

	// Actual usage on top of the reservation can push past the cap;
	// the total is recorded as-is and throttles later acquisitions.
	daily, err := actor.AddSeconds(ctx, 590)
	if err != nil {
		t.Fatalf("AddSeconds error = %v", err)
	}
	if daily != 620 {
		t.Fatalf("dailySeconds = %d, want 620", daily)
	}
}

func TestStatePersistsAcrossActors(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	states := NewMemoryStateStore()
	ctx := context.Background()

	first := startActor(t, states, clock)
	if _, err := first.AddSeconds(ctx, 100); err != nil {
		t.Fatalf("AddSeconds error = %v", err)
	}

	// A second actor over the same store sees the recorded usage.
	second := startActor(t, states, clock)
	snap, err := second.Status(ctx)
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if snap.DailySeconds != 100 {
		t.Fatalf("dailySeconds = %d, want 100", snap.DailySeconds)
	}
}

func TestConcurrentAcquiresNeverExceedLimit(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	actor := startActor(t, NewMemoryStateStore(), clock)
	ctx := context.Background()

	const callers = 20
	granted := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := actor.Acquire(ctx, 1, 3, 600)
			if err != nil {
				t.Errorf("Acquire error = %v", err)
				return
			}
			granted <- res.OK
		}()
	}
	wg.Wait()
	close(granted)

	grants := 0
	for ok := range granted {
		if ok {
			grants++
		}
	}
	if grants != 3 {
		t.Fatalf("grants = %d, want exactly 3", grants)
	}
}
