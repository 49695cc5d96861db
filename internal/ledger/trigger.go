package ledger

import (
	"errors"
	"strconv"
	"time"

	"github.com/dosewise/dosewise/internal/medication"
	"github.com/dosewise/dosewise/internal/schedule"
)

// ErrPermissionDenied is returned by Schedule when notification permission
// has not been granted. Callers surface it to the UI; every other
// scheduling failure is best-effort and absorbed.
var ErrPermissionDenied = errors.New("notification permission not granted")

// PermissionState models the platform notification-permission status
type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Trigger is one outstanding reminder registration. The name and
// instructions are a payload snapshot captured at schedule time: edits to
// the medication do not change an already-registered trigger until
// Reschedule replaces it.
type Trigger struct {
	MedicationID string
	Spec         schedule.FireSpec

	MedicationName string
	Instructions   string

	// ActiveFrom and ActiveUntil bound delivery, inclusive at date precision
	ActiveFrom  time.Time
	ActiveUntil time.Time

	RegisteredAt time.Time
	// LastFired is the last delivery instant, used to fire at most once
	// per due minute. Zero until the first firing.
	LastFired time.Time
}

// fields encodes the trigger as a Redis hash
func (t Trigger) fields() map[string]interface{} {
	m := map[string]interface{}{
		"medication_id": t.MedicationID,
		"name":          t.MedicationName,
		"instructions":  t.Instructions,
		"hour":          t.Spec.Hour,
		"minute":        t.Spec.Minute,
		"frequency":     string(t.Spec.Frequency),
		"weekday":       int(t.Spec.Weekday),
		"anchor":        t.Spec.Anchor.Format(time.RFC3339),
		"once":          strconv.FormatBool(t.Spec.Once),
		"active_from":   t.ActiveFrom.Format(time.RFC3339),
		"active_until":  t.ActiveUntil.Format(time.RFC3339),
		"registered_at": t.RegisteredAt.Format(time.RFC3339),
	}
	if !t.LastFired.IsZero() {
		m["last_fired"] = t.LastFired.Format(time.RFC3339)
	}
	return m
}

// triggerFrom decodes a Redis hash into a Trigger. Unparseable fields fall
// back to zero values rather than failing the whole trigger.
func triggerFrom(id string, result map[string]string) Trigger {
	t := Trigger{
		MedicationID:   id,
		MedicationName: result["name"],
		Instructions:   result["instructions"],
	}

	t.Spec.Frequency = medication.Frequency(result["frequency"])
	if v, err := strconv.Atoi(result["hour"]); err == nil {
		t.Spec.Hour = v
	}
	if v, err := strconv.Atoi(result["minute"]); err == nil {
		t.Spec.Minute = v
	}
	if v, err := strconv.Atoi(result["weekday"]); err == nil {
		t.Spec.Weekday = time.Weekday(v)
	}
	if v, err := strconv.ParseBool(result["once"]); err == nil {
		t.Spec.Once = v
	}

	t.Spec.Anchor = parseTime(result["anchor"])
	t.ActiveFrom = parseTime(result["active_from"])
	t.ActiveUntil = parseTime(result["active_until"])
	t.RegisteredAt = parseTime(result["registered_at"])
	t.LastFired = parseTime(result["last_fired"])

	return t
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
