// Package metrics tracks in-memory counters for the reminder subsystem.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dosewise/dosewise/internal/medication"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks reminder metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	triggersScheduled  atomic.Int64
	triggersCancelled  atomic.Int64
	remindersDelivered atomic.Int64
	speechSkipped      atomic.Int64
	reconcileRuns      atomic.Int64
	reconcileAdded     atomic.Int64

	// Delivery breakdown by frequency (protected by mutex)
	mu                   sync.RWMutex
	deliveredByFrequency map[medication.Frequency]int64
	startTime            time.Time
}

// Metrics represents a snapshot of current reminder metrics
type Metrics struct {
	TriggersScheduled    int64                            `json:"triggers_scheduled"`
	TriggersCancelled    int64                            `json:"triggers_cancelled"`
	RemindersDelivered   int64                            `json:"reminders_delivered"`
	SpeechSkipped        int64                            `json:"speech_skipped"`
	ReconcileRuns        int64                            `json:"reconcile_runs"`
	ReconcileAdded       int64                            `json:"reconcile_added"`
	DeliveredByFrequency map[medication.Frequency]int64   `json:"delivered_by_frequency"`
	Uptime               time.Duration                    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		deliveredByFrequency: make(map[medication.Frequency]int64),
		startTime:            time.Now(),
	}
}

// RecordScheduled counts a successful trigger registration
func (c *Collector) RecordScheduled() {
	c.triggersScheduled.Add(1)
}

// RecordCancelled counts a trigger cancellation
func (c *Collector) RecordCancelled() {
	c.triggersCancelled.Add(1)
}

// RecordDelivered counts one presented reminder
func (c *Collector) RecordDelivered(freq medication.Frequency) {
	c.remindersDelivered.Add(1)

	c.mu.Lock()
	c.deliveredByFrequency[freq]++
	c.mu.Unlock()
}

// RecordSpeechSkipped counts an announcement skipped by the playback guard
func (c *Collector) RecordSpeechSkipped() {
	c.speechSkipped.Add(1)
}

// RecordReconcile counts one reconciliation pass and the triggers it added
func (c *Collector) RecordReconcile(added int) {
	c.reconcileRuns.Add(1)
	c.reconcileAdded.Add(int64(added))
}

// Snapshot returns a point-in-time copy of all metrics
func (c *Collector) Snapshot() Metrics {
	c.mu.RLock()
	byFreq := make(map[medication.Frequency]int64, len(c.deliveredByFrequency))
	for k, v := range c.deliveredByFrequency {
		byFreq[k] = v
	}
	start := c.startTime
	c.mu.RUnlock()

	return Metrics{
		TriggersScheduled:    c.triggersScheduled.Load(),
		TriggersCancelled:    c.triggersCancelled.Load(),
		RemindersDelivered:   c.remindersDelivered.Load(),
		SpeechSkipped:        c.speechSkipped.Load(),
		ReconcileRuns:        c.reconcileRuns.Load(),
		ReconcileAdded:       c.reconcileAdded.Load(),
		DeliveredByFrequency: byFreq,
		Uptime:               time.Since(start),
	}
}

// Reset zeroes all counters (for testing)
func (c *Collector) Reset() {
	c.triggersScheduled.Store(0)
	c.triggersCancelled.Store(0)
	c.remindersDelivered.Store(0)
	c.speechSkipped.Store(0)
	c.reconcileRuns.Store(0)
	c.reconcileAdded.Store(0)

	c.mu.Lock()
	c.deliveredByFrequency = make(map[medication.Frequency]int64)
	c.startTime = time.Now()
	c.mu.Unlock()
}
