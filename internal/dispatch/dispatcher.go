// Package dispatch drives trigger firing. It periodically matches the
// ledger's pending triggers against the clock and hands due firings to
// delivery — the standalone counterpart of the platform notification
// engine, and the place where constraints cron cannot express (alternate
// day parity, one-shot retirement, active date range) are resolved at
// fire time.
package dispatch

import (
	"context"
	"time"

	"github.com/dosewise/dosewise/internal/delivery"
	"github.com/dosewise/dosewise/internal/ledger"
	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/schedule"
)

// Ledger is the trigger surface the dispatcher needs
type Ledger interface {
	ListPending(ctx context.Context) ([]string, error)
	Pending(ctx context.Context, medicationID string) (ledger.Trigger, bool, error)
	MarkFired(ctx context.Context, medicationID string, at time.Time) error
	Cancel(ctx context.Context, medicationID string) error
}

// Deliverer renders a fired trigger
type Deliverer interface {
	OnTriggerFired(ctx context.Context, medicationID string, p delivery.Payload)
}

// Dispatcher fires due triggers on a tick
type Dispatcher struct {
	ledger    Ledger
	deliverer Deliverer
	interval  time.Duration
	now       func() time.Time
	log       logger.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(led Ledger, del Deliverer, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		ledger:    led,
		deliverer: del,
		interval:  interval,
		now:       time.Now,
		log:       logger.Default().WithComponent(logger.ComponentDispatch),
	}
}

// SetClock overrides the clock (for testing)
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start begins the dispatch loop
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info("Dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Dispatcher stopping")
			return
		case <-ticker.C:
			d.tick(ctx, d.now())
		}
	}
}

// tick fires every pending trigger that is due at now. A trigger fires at
// most once per due minute; one-shot triggers are cancelled after their
// single firing.
func (d *Dispatcher) tick(ctx context.Context, now time.Time) {
	ids, err := d.ledger.ListPending(ctx)
	if err != nil {
		d.log.Error("Failed to list pending triggers", "error", err)
		return
	}

	for _, id := range ids {
		t, ok, err := d.ledger.Pending(ctx, id)
		if err != nil {
			d.log.Error("Failed to load trigger", "medication_id", id, "error", err)
			continue
		}
		if !ok {
			// Set member without a trigger hash; drop the stale entry
			d.log.Warn("Removing stale pending entry", "medication_id", id)
			if err := d.ledger.Cancel(ctx, id); err != nil {
				d.log.Error("Failed to remove stale entry", "medication_id", id, "error", err)
			}
			continue
		}

		if !t.Spec.Matches(now) {
			continue
		}
		if outOfRange(t, now) {
			continue
		}
		if firedThisMinute(t.LastFired, now) {
			continue
		}

		d.log.Info("Trigger fired",
			"medication_id", id,
			"frequency", string(t.Spec.Frequency))

		d.deliverer.OnTriggerFired(ctx, id, delivery.Payload{
			MedicationName: t.MedicationName,
			Instructions:   t.Instructions,
			Frequency:      t.Spec.Frequency,
		})

		if err := d.ledger.MarkFired(ctx, id, now); err != nil {
			d.log.Error("Failed to record firing", "medication_id", id, "error", err)
		}

		if t.Spec.Once {
			if err := d.ledger.Cancel(ctx, id); err != nil {
				d.log.Error("Failed to retire one-shot trigger", "medication_id", id, "error", err)
			} else {
				d.log.Info("One-shot trigger completed", "medication_id", id)
			}
		}
	}
}

// outOfRange reports whether now falls outside the trigger's active dates.
// An expired trigger is skipped, not removed: removal stays an explicit
// delete/edit action.
func outOfRange(t ledger.Trigger, now time.Time) bool {
	day := schedule.DateOf(now)
	if !t.ActiveFrom.IsZero() && day.Before(t.ActiveFrom) {
		return true
	}
	if !t.ActiveUntil.IsZero() && day.After(t.ActiveUntil) {
		return true
	}
	return false
}

// firedThisMinute reports whether the trigger already fired in now's minute
func firedThisMinute(lastFired, now time.Time) bool {
	if lastFired.IsZero() {
		return false
	}
	return lastFired.Truncate(time.Minute).Equal(now.Truncate(time.Minute))
}
