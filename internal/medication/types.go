// Package medication defines the domain types shared across the reminder
// subsystem: the medication entry itself and the append-only taken-history
// record.
package medication

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frequency represents how often a medication dose recurs
type Frequency string

const (
	// FrequencyDaily fires every day at the configured time
	FrequencyDaily Frequency = "daily"
	// FrequencyAlternateDays fires every other day, counted from the start date
	FrequencyAlternateDays Frequency = "alternate_days"
	// FrequencyWeekly fires once a week on the start date's weekday
	FrequencyWeekly Frequency = "weekly"
	// FrequencyJustOnce fires a single time and is then retired
	FrequencyJustOnce Frequency = "just_once"
)

// Valid reports whether f is a known frequency value
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyAlternateDays, FrequencyWeekly, FrequencyJustOnce:
		return true
	default:
		return false
	}
}

// Medication is a single medicine entry with its dosage schedule.
// The scheduler treats it as read-only input per cycle; the list itself
// is owned by storage.
type Medication struct {
	// ID is the stable unique identifier, also used as the trigger key
	ID string `json:"id"`
	// Name is shown in reminders and history rows
	Name string `json:"name"`
	// TimeToTake carries hour/minute semantics only; its date component
	// is ignored when computing trigger times
	TimeToTake time.Time `json:"time_to_take"`
	// Taken is whether the most recent due instance has been acknowledged
	Taken bool `json:"taken"`
	// Instructions is free text included in the reminder payload
	Instructions string `json:"instructions,omitempty"`
	// Image is an optional photo of the medicine
	Image []byte `json:"image,omitempty"`
	// StartDate and EndDate bound the active range, inclusive on both ends
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Frequency Frequency `json:"frequency"`
}

// New creates a medication with a fresh id
func New(name string, timeToTake, startDate, endDate time.Time, frequency Frequency) Medication {
	return Medication{
		ID:         uuid.New().String(),
		Name:       name,
		TimeToTake: timeToTake,
		StartDate:  startDate,
		EndDate:    endDate,
		Frequency:  frequency,
	}
}

// Validate checks the invariants a medication must satisfy before it can
// be scheduled
func (m Medication) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("medication id cannot be empty")
	}
	if m.Name == "" {
		return fmt.Errorf("medication name cannot be empty")
	}
	if !m.Frequency.Valid() {
		return fmt.Errorf("invalid frequency %q", m.Frequency)
	}
	start := dateOf(m.StartDate)
	end := dateOf(m.EndDate)
	if start.After(end) {
		return fmt.Errorf("start date %s is after end date %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}

// TakenEvent records one acknowledged dose. History is append-only: events
// are never mutated or deleted by the scheduler.
type TakenEvent struct {
	MedicationID string    `json:"medication_id"`
	Name         string    `json:"name"`
	TimeTaken    time.Time `json:"time_taken"`
	Image        []byte    `json:"image,omitempty"`
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
