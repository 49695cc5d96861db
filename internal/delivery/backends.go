package delivery

import (
	"context"

	"github.com/dosewise/dosewise/internal/logger"
)

// LogNotifier writes notifications to the structured log. It stands in
// for the platform banner backend in headless daemon runs.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		log: logger.Default().
			WithComponent(logger.ComponentDelivery).
			WithSource(logger.LogSourceReminder),
	}
}

// Push implements Notifier
func (n *LogNotifier) Push(ctx context.Context, notification Notification) error {
	n.log.Info("Reminder",
		"title", notification.Title,
		"body", notification.Body,
		"instructions", notification.Payload.Instructions)
	return nil
}

// LogSpeaker logs the phrase that would be spoken. It stands in for the
// platform speech synthesizer in headless daemon runs.
type LogSpeaker struct {
	log logger.Logger
}

// NewLogSpeaker creates a log-backed speaker
func NewLogSpeaker() *LogSpeaker {
	return &LogSpeaker{
		log: logger.Default().
			WithComponent(logger.ComponentDelivery).
			WithSource(logger.LogSourceReminder),
	}
}

// Speak implements Speaker
func (s *LogSpeaker) Speak(ctx context.Context, phrase string) error {
	s.log.Info("Speaking reminder", "phrase", phrase)
	return nil
}
