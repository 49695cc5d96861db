// Package storage persists the medication list and the taken-history as
// opaque JSON blobs in Redis, the moral equivalent of the original
// encode/decode-to-blob key-value store. A corrupt blob decodes to an
// empty result, never an error: the scheduler then simply has nothing to
// reconcile.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dosewise/dosewise/internal/logger"
	"github.com/dosewise/dosewise/internal/medication"
)

// RedisStore is the blob-backed persistence collaborator
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	// Pre-computed keys
	medicationsKey string
	historyKey     string

	log logger.Logger
}

// NewRedisStore creates a new Redis store and tests the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
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
	return &RedisStore{
		client:         client,
		keyPrefix:      prefix,
		medicationsKey: prefix + "medications",
		historyKey:     prefix + "history",
		log:            logger.Default().WithComponent(logger.ComponentStorage),
	}, nil
}

// Close closes the underlying Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// LoadMedications returns the saved medication list. A missing key or a
// blob that fails to decode yields an empty list.
func (s *RedisStore) LoadMedications(ctx context.Context) ([]medication.Medication, error) {
	data, err := s.client.Get(ctx, s.medicationsKey).Bytes()
	if err == redis.Nil {
		return []medication.Medication{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}

	var meds []medication.Medication
	if err := json.Unmarshal(data, &meds); err != nil {
		s.log.Warn("Discarding corrupt medication blob", "error", err, "bytes", len(data))
		return []medication.Medication{}, nil
	}
	return meds, nil
}

// SaveMedications replaces the saved medication list
func (s *RedisStore) SaveMedications(ctx context.Context, meds []medication.Medication) error {
	data, err := json.Marshal(meds)
	if err != nil {
		return fmt.Errorf("failed to marshal medications: %w", err)
	}

	if err := s.client.Set(ctx, s.medicationsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save medications: %w", err)
	}
	return nil
}

// AppendHistory appends one taken event. History is append-only; events
// are never rewritten.
func (s *RedisStore) AppendHistory(ctx context.Context, ev medication.TakenEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal history event: %w", err)
	}

	if err := s.client.RPush(ctx, s.historyKey, data).Err(); err != nil {
		return fmt.Errorf("failed to append history event: %w", err)
	}
	return nil
}

// History returns every recorded taken event in append order. Corrupt
// entries are skipped, not fatal.
func (s *RedisStore) History(ctx context.Context) ([]medication.TakenEvent, error) {
	entries, err := s.client.LRange(ctx, s.historyKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	events := make([]medication.TakenEvent, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		var ev medication.TakenEvent
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}

	if skipped > 0 {
		s.log.Warn("Skipped corrupt history entries", "count", skipped)
	}
	return events, nil
}

// HistoryBetween returns the taken events with timeTaken inside the
// inclusive range, feeding the report export flow.
func (s *RedisStore) HistoryBetween(ctx context.Context, from, to time.Time) ([]medication.TakenEvent, error) {
	events, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]medication.TakenEvent, 0, len(events))
	for _, ev := range events {
		if ev.TimeTaken.Before(from) || ev.TimeTaken.After(to) {
			continue
		}
		filtered = append(filtered, ev)
	}
	return filtered, nil
}

// Clear wipes the medication list and history. Used only on full data reset.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.medicationsKey, s.historyKey).Err(); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}
	s.log.Info("Storage cleared")
	return nil
}
