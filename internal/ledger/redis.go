// Package ledger is the single source of truth for which medications
// currently have an outstanding reminder trigger registered. The pending
// set lives in Redis, the durable stand-in for the platform's
// pending-notification table; every registration goes through this one
// choke point so "at most one pending trigger per medication id" stays
// enforceable.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/medication"
	"github.com/dosewise/dosewise/internal/metrics"
	"github.com/dosewise/dosewise/internal/schedule"
)

// RedisLedger manages the outstanding-trigger set in Redis
type RedisLedger struct {
	client    *redis.Client
	keyPrefix string
	// Pre-computed key for the pending id set
	pendingKey string

	mu         sync.RWMutex
	permission PermissionState

	log logger.Logger
}

// NewRedisLedger creates a new Redis-backed ledger and tests the connection
func NewRedisLedger(redisURL string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := "dosewise:"
	return &RedisLedger{
		client:     client,
		keyPrefix:  prefix,
		pendingKey: prefix + "triggers:pending",
		permission: PermissionUnknown,
		log:        logger.Default().WithComponent(logger.ComponentLedger),
	}, nil
}

// Close closes the underlying Redis connection
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// triggerKey returns the hash key holding one medication's trigger
func (l *RedisLedger) triggerKey(medicationID string) string {
	var b strings.Builder
	b.Grow(len(l.keyPrefix) + 8 + len(medicationID)) // "trigger:" = 8 chars
	b.WriteString(l.keyPrefix)
	b.WriteString("trigger:")
	b.WriteString(medicationID)
	return b.String()
}

// SetPermission records the platform permission status. Schedule
// short-circuits deterministically on any non-granted state.
func (l *RedisLedger) SetPermission(state PermissionState) {
	l.mu.Lock()
	l.permission = state
	l.mu.Unlock()
}

// Permission returns the recorded permission status
func (l *RedisLedger) Permission() PermissionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.permission
}

// Schedule registers a trigger for the medication under its id. It is
// best-effort: failures are reported, never retried here; the
// reconciliation pass is the recovery mechanism.
func (l *RedisLedger) Schedule(ctx context.Context, m medication.Medication) error {
	if l.Permission() != PermissionGranted {
		return ErrPermissionDenied
	}

	spec, err := schedule.ComputeFireSpec(m)
	if err != nil {
		return fmt.Errorf("compute fire spec: %w", err)
	}

	t := Trigger{
		MedicationID:   m.ID,
		Spec:           spec,
		MedicationName: m.Name,
		Instructions:   m.Instructions,
		ActiveFrom:     schedule.DateOf(m.StartDate),
		ActiveUntil:    schedule.DateOf(m.EndDate),
		RegisteredAt:   time.Now(),
	}

	// Hash write and set membership go through one pipeline so a trigger
	// is never half-registered
	pipe := l.client.Pipeline()
	pipe.HSet(ctx, l.triggerKey(m.ID), t.fields())
	pipe.SAdd(ctx, l.pendingKey, m.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register trigger: %w", err)
	}

	metrics.Default().RecordScheduled()
	l.log.Debug("Trigger registered",
		"medication_id", m.ID,
		"cron", spec.CronExpr(),
		"once", spec.Once)
	return nil
}

// Cancel removes the pending trigger for the id. Removing an id with no
// pending trigger is a no-op, not an error.
func (l *RedisLedger) Cancel(ctx context.Context, medicationID string) error {
	pipe := l.client.Pipeline()
	removed := pipe.SRem(ctx, l.pendingKey, medicationID)
	pipe.Del(ctx, l.triggerKey(medicationID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel trigger: %w", err)
	}

	if removed.Val() > 0 {
		metrics.Default().RecordCancelled()
		l.log.Debug("Trigger cancelled", "medication_id", medicationID)
	}
	return nil
}

// CancelAll clears every outstanding trigger. Used only on full data reset.
func (l *RedisLedger) CancelAll(ctx context.Context) error {
	ids, err := l.client.SMembers(ctx, l.pendingKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list pending triggers: %w", err)
	}

	pipe := l.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, l.triggerKey(id))
	}
	pipe.Del(ctx, l.pendingKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel all triggers: %w", err)
	}

	l.log.Info("All triggers cancelled", "count", len(ids))
	return nil
}

// ListPending returns the ids of all outstanding triggers. This is the
// authoritative snapshot; it may lag intent when entries were evicted
// out-of-band, which reconciliation repairs.
func (l *RedisLedger) ListPending(ctx context.Context) ([]string, error) {
	ids, err := l.client.SMembers(ctx, l.pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending triggers: %w", err)
	}
	return ids, nil
}

// Pending returns the trigger registered for the id, if any
func (l *RedisLedger) Pending(ctx context.Context, medicationID string) (Trigger, bool, error) {
	result, err := l.client.HGetAll(ctx, l.triggerKey(medicationID)).Result()
	if err != nil {
		return Trigger{}, false, fmt.Errorf("failed to get trigger: %w", err)
	}
	if len(result) == 0 {
		return Trigger{}, false, nil
	}
	return triggerFrom(medicationID, result), true, nil
}

// Reschedule atomically replaces the medication's trigger: the cancel
// completes before the new registration so no window holds two live
// triggers for one id.
func (l *RedisLedger) Reschedule(ctx context.Context, m medication.Medication) error {
	if err := l.Cancel(ctx, m.ID); err != nil {
		return fmt.Errorf("reschedule cancel: %w", err)
	}
	return l.Schedule(ctx, m)
}

// MarkFired records the instant the trigger last fired
func (l *RedisLedger) MarkFired(ctx context.Context, medicationID string, at time.Time) error {
	err := l.client.HSet(ctx, l.triggerKey(medicationID), "last_fired", at.Format(time.RFC3339)).Err()
	if err != nil {
		return fmt.Errorf("failed to mark trigger fired: %w", err)
	}
	return nil
}
