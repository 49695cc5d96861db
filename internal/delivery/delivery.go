// Package delivery renders fired triggers into user-facing reminders: an
// immediate visual notification and an optional spoken announcement.
// Delivery never touches the medication's taken flag; acknowledgment is a
// separate user action handled by the service facade.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/dosewise/dosewise/internal/errors"
	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/medication"
	"github.com/dosewise/dosewise/internal/metrics"
)

// notificationTitle is the fixed title of every reminder banner
const notificationTitle = "Medicine Reminder"

// Payload is the metadata blob a trigger carries so delivery-time
// rendering needs no storage read
type Payload struct {
	MedicationName string               `json:"medication_name"`
	Instructions   string               `json:"instructions"`
	Frequency      medication.Frequency `json:"frequency"`
}

// Notification is one rendered visual reminder
type Notification struct {
	Title   string
	Body    string
	Payload Payload
}

// Notifier presents visual notifications (the platform banner backend)
type Notifier interface {
	Push(ctx context.Context, n Notification) error
}

// Speaker plays spoken announcements (the platform speech backend)
type Speaker interface {
	Speak(ctx context.Context, phrase string) error
}

// Deliverer turns fired triggers into notifications and speech
type Deliverer struct {
	notifier    Notifier
	speaker     Speaker
	speechDelay time.Duration
	playback    playbackSlot
	wg          sync.WaitGroup
	log         logger.Logger
}

// NewDeliverer creates a deliverer. A nil speaker disables announcements.
func NewDeliverer(notifier Notifier, speaker Speaker, speechDelay time.Duration) *Deliverer {
	return &Deliverer{
		notifier:    notifier,
		speaker:     speaker,
		speechDelay: speechDelay,
		log: logger.Default().
			WithComponent(logger.ComponentDelivery).
			WithSource(logger.LogSourceReminder),
	}
}

// OnTriggerFired presents the visual notification immediately and, when a
// speaker is configured, schedules the spoken announcement after the
// configured delay so audio does not race the banner animation.
func (d *Deliverer) OnTriggerFired(ctx context.Context, medicationID string, p Payload) {
	n := Notification{
		Title:   notificationTitle,
		Body:    "Time to take " + p.MedicationName,
		Payload: p,
	}

	if err := d.notifier.Push(ctx, n); err != nil {
		d.log.Error("Failed to present notification",
			"medication_id", medicationID,
			"error", err)
	} else {
		metrics.Default().RecordDelivered(p.Frequency)
	}

	if d.speaker == nil {
		return
	}

	d.wg.Add(1)
	go d.announce(ctx, medicationID, p)
}

// announce speaks the reminder after the delay. The single-slot playback
// guard skips the announcement when speech is already playing so rapid
// consecutive firings never overlap audio.
func (d *Deliverer) announce(ctx context.Context, medicationID string, p Payload) {
	defer d.wg.Done()
	defer func() {
		if err := apperrors.RecoverPanic(); err != nil {
			if panicErr, ok := err.(*apperrors.PanicError); ok {
				d.log.Error("Speech backend panicked", "detail", apperrors.FormatPanicForLog(panicErr))
			}
		}
	}()

	timer := time.NewTimer(d.speechDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !d.playback.tryAcquire() {
		d.log.Debug("Speech already playing, skipping announcement",
			"medication_id", medicationID)
		metrics.Default().RecordSpeechSkipped()
		return
	}
	defer d.playback.release()

	if err := d.speaker.Speak(ctx, Phrase(p)); err != nil {
		d.log.Error("Failed to speak reminder",
			"medication_id", medicationID,
			"error", err)
	}
}

// Wait blocks until in-flight announcements finish (graceful shutdown)
func (d *Deliverer) Wait() {
	d.wg.Wait()
}

// Phrase composes the one-sentence spoken reminder from name and instructions
func Phrase(p Payload) string {
	phrase := fmt.Sprintf("Time to take %s.", p.MedicationName)
	if p.Instructions != "" {
		phrase += " " + p.Instructions
	}
	return phrase
}
