// Package reminder is the app-facing facade over storage, the
// notification ledger, and reconciliation. UI actions (save, edit,
// delete, mark-as-taken, app-foreground) enter the subsystem through the
// methods here, never by registering triggers directly, so the "at most
// one pending trigger per medication" invariant has a single choke point.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dosewise/dosewise/internal/ledger"
	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/medication"
	"github.com/dosewise/dosewise/internal/reconcile"
	"github.com/dosewise/dosewise/internal/storage"
)

// ErrMedicationNotFound is returned when an id does not match any saved
// medication
var ErrMedicationNotFound = errors.New("medication not found")

// Authorizer models the platform permission prompt. It must be invoked,
// and must report granted, before Schedule calls are meaningful.
type Authorizer interface {
	RequestPermission(ctx context.Context) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface
type AuthorizerFunc func(ctx context.Context) (bool, error)

func (f AuthorizerFunc) RequestPermission(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Service wires the reminder subsystem together
type Service struct {
	store      *storage.RedisStore
	triggers   *ledger.RedisLedger
	reconciler *reconcile.Reconciler
	log        logger.Logger
}

// NewService connects storage and the ledger and builds the reconciler
func NewService(redisURL string) (*Service, error) {
	store, err := storage.NewRedisStore(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	triggers, err := ledger.NewRedisLedger(redisURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	return &Service{
		store:      store,
		triggers:   triggers,
		reconciler: reconcile.NewReconciler(store, triggers),
		log:        logger.Default().WithComponent(logger.ComponentService),
	}, nil
}

// Close closes all connections
func (s *Service) Close() error {
	var errs []error
	if err := s.triggers.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ledger close: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing service: %v", errs)
	}
	return nil
}

// Ledger exposes the trigger ledger for dispatcher wiring
func (s *Service) Ledger() *ledger.RedisLedger { return s.triggers }

// Reconciler exposes the reconciler for the periodic foreground pass
func (s *Service) Reconciler() *reconcile.Reconciler { return s.reconciler }

// RequestPermission runs the platform prompt and records the outcome on
// the ledger. A prompt error counts as denied.
func (s *Service) RequestPermission(ctx context.Context, auth Authorizer) (bool, error) {
	granted, err := auth.RequestPermission(ctx)
	if err != nil {
		s.triggers.SetPermission(ledger.PermissionDenied)
		return false, fmt.Errorf("permission request failed: %w", err)
	}

	if granted {
		s.triggers.SetPermission(ledger.PermissionGranted)
	} else {
		s.triggers.SetPermission(ledger.PermissionDenied)
	}

	s.log.Info("Notification permission resolved", "granted", granted)
	return granted, nil
}

// SaveMedication upserts the medication and registers its trigger. The
// authoritative reschedule runs after the storage commit so the last
// writer wins over any reconciliation in flight.
func (s *Service) SaveMedication(ctx context.Context, m medication.Medication) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid medication: %w", err)
	}

	meds, err := s.store.LoadMedications(ctx)
	if err != nil {
		return fmt.Errorf("load medications: %w", err)
	}

	replaced := false
	for i := range meds {
		if meds[i].ID == m.ID {
			meds[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		meds = append(meds, m)
	}

	if err := s.store.SaveMedications(ctx, meds); err != nil {
		return fmt.Errorf("save medications: %w", err)
	}

	if err := s.triggers.Reschedule(ctx, m); err != nil {
		if errors.Is(err, ledger.ErrPermissionDenied) {
			return err
		}
		// Best effort: the medication is saved, reconciliation will
		// recover the trigger on its next pass
		s.log.Error("Failed to register trigger",
			"medication_id", m.ID,
			"error", err)
	}

	return nil
}

// DeleteMedication removes the medication and performs the final
// authoritative cancel after the storage commit
func (s *Service) DeleteMedication(ctx context.Context, id string) error {
	meds, err := s.store.LoadMedications(ctx)
	if err != nil {
		return fmt.Errorf("load medications: %w", err)
	}

	kept := meds[:0]
	found := false
	for _, m := range meds {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return ErrMedicationNotFound
	}

	if err := s.store.SaveMedications(ctx, kept); err != nil {
		return fmt.Errorf("save medications: %w", err)
	}

	if err := s.triggers.Cancel(ctx, id); err != nil {
		// The medication is gone from storage; a dangling trigger will
		// skip out-of-range firings and can be cleared manually
		s.log.Error("Failed to cancel trigger", "medication_id", id, "error", err)
	}

	return nil
}

// MarkTaken acknowledges the most recent due dose: it persists the taken
// flag and appends exactly one history event per call
func (s *Service) MarkTaken(ctx context.Context, id string, takenAt time.Time) error {
	meds, err := s.store.LoadMedications(ctx)
	if err != nil {
		return fmt.Errorf("load medications: %w", err)
	}

	var taken *medication.Medication
	for i := range meds {
		if meds[i].ID == id {
			meds[i].Taken = true
			taken = &meds[i]
			break
		}
	}
	if taken == nil {
		return ErrMedicationNotFound
	}

	if err := s.store.SaveMedications(ctx, meds); err != nil {
		return fmt.Errorf("save medications: %w", err)
	}

	ev := medication.TakenEvent{
		MedicationID: id,
		Name:         taken.Name,
		TimeTaken:    takenAt,
		Image:        taken.Image,
	}
	if err := s.store.AppendHistory(ctx, ev); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return nil
}

// Medications returns the saved medication list
func (s *Service) Medications(ctx context.Context) ([]medication.Medication, error) {
	return s.store.LoadMedications(ctx)
}

// History returns taken events inside the inclusive range, for the report
// export flow
func (s *Service) History(ctx context.Context, from, to time.Time) ([]medication.TakenEvent, error) {
	return s.store.HistoryBetween(ctx, from, to)
}

// Reconcile runs one reconciliation pass (app-foreground hook)
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	return s.reconciler.Run(ctx)
}

// Reset wipes all persisted data and clears every outstanding trigger
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	return s.triggers.CancelAll(ctx)
}
