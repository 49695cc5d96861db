// Package reconcile implements the self-healing pass that keeps the
// pending-trigger set consistent with the authoritative medication list.
// It is the sole defense against trigger loss (eviction, reinstall,
// permission re-grant): it only ever adds missing triggers, never removes
// extras — removal is Cancel's job, invoked explicitly on delete/edit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dosewise/dosewise/internal/ledger"
	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/medication"
	"github.com/dosewise/dosewise/internal/metrics"
	"github.com/dosewise/dosewise/internal/schedule"
)

// Ledger is the trigger-registration surface the reconciler needs
type Ledger interface {
	ListPending(ctx context.Context) ([]string, error)
	Schedule(ctx context.Context, m medication.Medication) error
}

// Source provides the authoritative medication list
type Source interface {
	LoadMedications(ctx context.Context) ([]medication.Medication, error)
}

// Reconciler re-derives the correct pending-trigger set from the
// medication list
type Reconciler struct {
	source Source
	ledger Ledger
	now    func() time.Time
	log    logger.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(source Source, led Ledger) *Reconciler {
	return &Reconciler{
		source: source,
		ledger: led,
		now:    time.Now,
		log:    logger.Default().WithComponent(logger.ComponentReconciler),
	}
}

// SetClock overrides the clock (for testing)
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Run performs one reconciliation pass and returns how many triggers it
// added. Medications already pending are assumed correctly configured:
// edits must go through Reschedule, not rely on this pass to fix drift.
// Individual scheduling failures are logged and absorbed — the next pass
// retries — except ErrPermissionDenied, which stops the pass since every
// further Schedule would short-circuit the same way.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	meds, err := r.source.LoadMedications(ctx)
	if err != nil {
		return 0, fmt.Errorf("load medications: %w", err)
	}

	ids, err := r.ledger.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending triggers: %w", err)
	}

	pending := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}

	now := r.now()
	added := 0

	for _, m := range meds {
		if !schedule.IsActive(m, now) {
			continue
		}
		if _, ok := pending[m.ID]; ok {
			continue
		}

		spec, err := schedule.ComputeFireSpec(m)
		if err != nil {
			r.log.Warn("Skipping medication with invalid schedule",
				"medication_id", m.ID,
				"error", err)
			continue
		}
		// A one-shot whose single firing is already past stays retired
		if spec.Once && spec.OnceAt().Before(now) {
			continue
		}

		if err := r.ledger.Schedule(ctx, m); err != nil {
			if errors.Is(err, ledger.ErrPermissionDenied) {
				r.log.Warn("Reconciliation stopped, notification permission not granted")
				metrics.Default().RecordReconcile(added)
				return added, err
			}
			r.log.Error("Failed to schedule trigger",
				"medication_id", m.ID,
				"error", err)
			continue
		}

		r.log.Info("Recovered missing trigger", "medication_id", m.ID)
		added++
	}

	metrics.Default().RecordReconcile(added)
	return added, nil
}

// Start re-runs the pass on an interval until the context is cancelled
// (the daemon analog of the app-foreground hook)
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	r.log.Info("Reconciler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciler stopping")
			return
		case <-ticker.C:
			added, err := r.Run(ctx)
			if err != nil {
				r.log.Error("Reconciliation pass failed", "error", err)
				continue
			}
			if added > 0 {
				r.log.Info("Reconciliation pass complete", "added", added)
			}
		}
	}
}
