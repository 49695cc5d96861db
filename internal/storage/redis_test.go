package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dosewise/dosewise/internal/medication"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, mr
}

func sampleMedications() []medication.Medication {
	return []medication.Medication{
		medication.New("Aspirin",
			time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			medication.FrequencyDaily),
		medication.New("Ibuprofen",
			time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			medication.FrequencyWeekly),
	}
}

func TestLoadMedications_MissingKey(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	meds, err := store.LoadMedications(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(meds) != 0 {
		t.Errorf("expected empty list, got %d entries", len(meds))
	}
}

func TestSaveLoadMedications_Roundtrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	want := sampleMedications()

	if err := store.SaveMedications(ctx, want); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	got, err := store.LoadMedications(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d medications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Errorf("entry %d mismatch: got %+v", i, got[i])
		}
		if got[i].Frequency != want[i].Frequency {
			t.Errorf("entry %d frequency mismatch: got %v", i, got[i].Frequency)
		}
	}
}

func TestLoadMedications_CorruptBlob(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()

	mr.Set(store.medicationsKey, "{not json")

	meds, err := store.LoadMedications(context.Background())
	if err != nil {
		t.Fatalf("corrupt blob must not surface an error, got %v", err)
	}
	if len(meds) != 0 {
		t.Errorf("corrupt blob should decode to empty list, got %d entries", len(meds))
	}
}

func TestHistory_AppendOrder(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i, name := range []string{"Aspirin", "Ibuprofen", "Aspirin"} {
		ev := medication.TakenEvent{
			MedicationID: name + "-id",
			Name:         name,
			TimeTaken:    time.Date(2024, 1, 1, 8+i, 0, 0, 0, time.UTC),
		}
		if err := store.AppendHistory(ctx, ev); err != nil {
			t.Fatalf("failed to append event %d: %v", i, err)
		}
	}

	events, err := store.History(ctx)
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Name != "Aspirin" || events[1].Name != "Ibuprofen" {
		t.Errorf("events not in append order: %v", events)
	}
}

func TestHistory_SkipsCorruptEntries(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	good := medication.TakenEvent{
		MedicationID: "med-a",
		Name:         "Aspirin",
		TimeTaken:    time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
	}
	if err := store.AppendHistory(ctx, good); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	mr.Lpush(store.historyKey, "garbage")

	events, err := store.History(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 decodable event, got %d", len(events))
	}
	if events[0].Name != "Aspirin" {
		t.Errorf("event mismatch: %+v", events[0])
	}
}

func TestHistoryBetween_InclusiveRange(t *testing.T) {
	store, _ := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	days := []int{1, 5, 10, 15}
	for _, d := range days {
		ev := medication.TakenEvent{
			MedicationID: "med-a",
			Name:         "Aspirin",
			TimeTaken:    time.Date(2024, 1, d, 8, 30, 0, 0, time.UTC),
		}
		if err := store.AppendHistory(ctx, ev); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	from := time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)
	to := time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC)

	events, err := store.HistoryBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events inside inclusive range, got %d", len(events))
	}
	if !events[0].TimeTaken.Equal(from) || !events[1].TimeTaken.Equal(to) {
		t.Errorf("boundary events should be included: %v", events)
	}
}

func TestClear(t *testing.T) {
	store, mr := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.SaveMedications(ctx, sampleMedications()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if err := store.AppendHistory(ctx, medication.TakenEvent{MedicationID: "x", Name: "X"}); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if mr.Exists(store.medicationsKey) || mr.Exists(store.historyKey) {
		t.Error("expected both keys deleted after clear")
	}

	meds, _ := store.LoadMedications(ctx)
	if len(meds) != 0 {
		t.Errorf("expected empty list after clear, got %d", len(meds))
	}
}
