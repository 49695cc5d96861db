// Package schedule contains the pure recurrence logic of the reminder
// subsystem: deriving a fire specification from a medication's recurrence
// fields and answering when, and whether, that specification is due.
// Everything here is deterministic and performs no I/O.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dosewise/dosewise/internal/medication"
)

// parser accepts standard 5-field cron expressions (minute hour dom month dow)
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// FireSpec describes when a medication's reminder trigger should fire.
type FireSpec struct {
	Hour      int
	Minute    int
	Frequency medication.Frequency

	// Weekday constrains weekly specs to the start date's weekday
	Weekday time.Weekday

	// Anchor is the start date at midnight. It is the parity reference for
	// alternate-day specs and the fire date for one-shot specs.
	Anchor time.Time

	// Once marks a spec that fires a single time; the trigger must be
	// cancelled after that firing instead of re-registered.
	Once bool
}

// ComputeFireSpec derives the fire specification from a medication's
// recurrence fields. Identical input always yields an identical spec.
func ComputeFireSpec(m medication.Medication) (FireSpec, error) {
	if err := m.Validate(); err != nil {
		return FireSpec{}, fmt.Errorf("invalid medication: %w", err)
	}

	spec := FireSpec{
		Hour:      m.TimeToTake.Hour(),
		Minute:    m.TimeToTake.Minute(),
		Frequency: m.Frequency,
		Anchor:    DateOf(m.StartDate),
	}

	switch m.Frequency {
	case medication.FrequencyWeekly:
		spec.Weekday = m.StartDate.Weekday()
	case medication.FrequencyJustOnce:
		spec.Once = true
	}

	return spec, nil
}

// CronExpr returns the 5-field cron expression for the spec's repeating
// calendar match. Alternate-day specs report their daily expression; the
// parity constraint cannot be expressed in cron and is enforced at fire
// time via Matches.
func (s FireSpec) CronExpr() string {
	if s.Frequency == medication.FrequencyWeekly {
		return fmt.Sprintf("%d %d * * %d", s.Minute, s.Hour, int(s.Weekday))
	}
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

// OnceAt returns the single fire instant of a one-shot spec: the start
// date at the configured hour and minute.
func (s FireSpec) OnceAt() time.Time {
	return time.Date(s.Anchor.Year(), s.Anchor.Month(), s.Anchor.Day(),
		s.Hour, s.Minute, 0, 0, s.Anchor.Location())
}

// NextFire returns the first instant strictly after the given time at
// which the spec is due. For a one-shot spec whose single firing is
// already past it returns the zero time.
func (s FireSpec) NextFire(after time.Time) (time.Time, error) {
	if s.Once {
		fireAt := s.OnceAt()
		if !fireAt.After(after) {
			return time.Time{}, nil
		}
		return fireAt, nil
	}

	sched, err := parser.Parse(s.CronExpr())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", s.CronExpr(), err)
	}

	next := sched.Next(after)
	if s.Frequency == medication.FrequencyAlternateDays {
		for !s.onParity(next) {
			next = sched.Next(next)
		}
	}
	return next, nil
}

// Matches reports whether the spec is due at t, at minute granularity.
func (s FireSpec) Matches(t time.Time) bool {
	if t.Hour() != s.Hour || t.Minute() != s.Minute {
		return false
	}

	switch s.Frequency {
	case medication.FrequencyWeekly:
		return t.Weekday() == s.Weekday
	case medication.FrequencyAlternateDays:
		return s.onParity(t)
	case medication.FrequencyJustOnce:
		return !DateOf(t).Before(s.Anchor)
	default:
		return true
	}
}

// onParity reports whether t falls an even number of days from the anchor
func (s FireSpec) onParity(t time.Time) bool {
	return DaysBetween(s.Anchor, t)%2 == 0
}

// IsActive reports whether the medication's schedule covers asOf,
// inclusive on both ends at date precision.
func IsActive(m medication.Medication, asOf time.Time) bool {
	d := DateOf(asOf)
	return !d.Before(DateOf(m.StartDate)) && !d.After(DateOf(m.EndDate))
}

// DateOf truncates t to midnight in its own location
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, negative
// when b precedes a. Rounding absorbs DST offsets.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(DateOf(b).Sub(DateOf(a)).Hours() / 24))
}
