package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dosewise/dosewise/internal/delivery"
	"github.com/dosewise/dosewise/internal/ledger"
	"github.com/dosewise/dosewise/internal/medication"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	fired []string
}

func (f *fakeDeliverer) OnTriggerFired(ctx context.Context, medicationID string, p delivery.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, medicationID)
}

func (f *fakeDeliverer) firings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fired))
	copy(out, f.fired)
	return out
}

func setupTestDispatcher(t *testing.T) (*Dispatcher, *ledger.RedisLedger, *fakeDeliverer) {
	mr := miniredis.RunT(t)

	led, err := ledger.NewRedisLedger("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	t.Cleanup(func() { led.Close() })
	led.SetPermission(ledger.PermissionGranted)

	del := &fakeDeliverer{}
	return NewDispatcher(led, del, 15*time.Second), led, del
}

func dailyMedication(id string) medication.Medication {
	return medication.Medication{
		ID:         id,
		Name:       "Aspirin",
		TimeToTake: time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Frequency:  medication.FrequencyDaily,
	}
}

func TestTick_FiresAtDueMinute(t *testing.T) {
	d, led, del := setupTestDispatcher(t)
	ctx := context.Background()

	if err := led.Schedule(ctx, dailyMedication("med-a")); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	d.tick(ctx, time.Date(2024, 1, 15, 8, 29, 0, 0, time.UTC))
	if len(del.firings()) != 0 {
		t.Fatal("trigger fired a minute early")
	}

	d.tick(ctx, time.Date(2024, 1, 15, 8, 30, 5, 0, time.UTC))
	if got := del.firings(); len(got) != 1 || got[0] != "med-a" {
		t.Fatalf("expected one firing for med-a, got %v", got)
	}
}

func TestTick_AtMostOncePerMinute(t *testing.T) {
	d, led, del := setupTestDispatcher(t)
	ctx := context.Background()

	if err := led.Schedule(ctx, dailyMedication("med-a")); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	// Several ticks inside the same due minute, as a short tick interval
	// produces
	base := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 15 * time.Second, 30 * time.Second, 45 * time.Second} {
		d.tick(ctx, base.Add(offset))
	}

	if got := del.firings(); len(got) != 1 {
		t.Fatalf("expected exactly 1 firing within the minute, got %d", len(got))
	}

	// The next day's due minute fires again
	d.tick(ctx, base.AddDate(0, 0, 1))
	if got := del.firings(); len(got) != 2 {
		t.Fatalf("expected a second firing the next day, got %d", len(got))
	}
}

func TestTick_OneShotRetiredAfterFiring(t *testing.T) {
	d, led, del := setupTestDispatcher(t)
	ctx := context.Background()

	m := dailyMedication("once")
	m.Frequency = medication.FrequencyJustOnce
	if err := led.Schedule(ctx, m); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	d.tick(ctx, time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC))
	if len(del.firings()) != 1 {
		t.Fatalf("expected the one-shot to fire, got %v", del.firings())
	}

	ids, err := led.ListPending(ctx)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("one-shot should be cancelled after firing, still pending: %v", ids)
	}
}

func TestTick_SkipsOutOfRange(t *testing.T) {
	d, led, del := setupTestDispatcher(t)
	ctx := context.Background()

	if err := led.Schedule(ctx, dailyMedication("med-a")); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	// Past the end date: skipped but not removed
	d.tick(ctx, time.Date(2024, 2, 10, 8, 30, 0, 0, time.UTC))
	if len(del.firings()) != 0 {
		t.Fatal("expired trigger must not fire")
	}

	ids, _ := led.ListPending(ctx)
	if len(ids) != 1 {
		t.Errorf("expired trigger must stay registered, got %v", ids)
	}
}

func TestTick_AlternateDayParity(t *testing.T) {
	d, led, del := setupTestDispatcher(t)
	ctx := context.Background()

	m := dailyMedication("alt")
	m.Frequency = medication.FrequencyAlternateDays
	if err := led.Schedule(ctx, m); err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	// Jan 1 anchor: fires Jan 1 and Jan 3, not Jan 2
	for _, day := range []int{1, 2, 3} {
		d.tick(ctx, time.Date(2024, 1, day, 8, 30, 0, 0, time.UTC))
	}

	if got := del.firings(); len(got) != 2 {
		t.Fatalf("expected 2 firings over 3 days, got %d", len(got))
	}
}

func TestTick_RemovesStaleSetMember(t *testing.T) {
	mr := miniredis.RunT(t)

	led, err := ledger.NewRedisLedger("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer led.Close()
	led.SetPermission(ledger.PermissionGranted)

	// A set member without its trigger hash, as a partial delete leaves
	mr.SAdd("dosewise:triggers:pending", "ghost")

	del := &fakeDeliverer{}
	d := NewDispatcher(led, del, 15*time.Second)

	ctx := context.Background()
	d.tick(ctx, time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC))

	if len(del.firings()) != 0 {
		t.Errorf("stale entry must not fire, got %v", del.firings())
	}

	ids, _ := led.ListPending(ctx)
	if len(ids) != 0 {
		t.Errorf("stale entry should be removed, got %v", ids)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	d, _, _ := setupTestDispatcher(t)
	d.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}
