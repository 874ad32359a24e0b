package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wyrdlabs/wyrd/internal/engine/checkpoint"
	"github.com/wyrdlabs/wyrd/internal/engine/session"
	"github.com/wyrdlabs/wyrd/internal/engine/state"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "wyrd.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return store
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wyrd.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	second.Close()
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "sess_missing"); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, checkpoint.ErrNotFound)
	}

	snapshot, err := state.New("sess_1", "camp_1", 42, testTime)
	if err != nil {
		t.Fatalf("state.New returned error: %v", err)
	}
	snapshot.TurnNumber = 7
	snapshot.PhaseData.Players = append(snapshot.PhaseData.Players, state.Player{
		ID: "pc_1", Name: "Iris", Class: "warrior", Level: 1,
		Inventory: []string{"longsword"}, CurrentHP: 10, MaxHP: 10,
	})
	snapshot.PhaseData.World.Flags["encounter_hp"] = "6"

	if err := store.Put(ctx, snapshot.SessionID, snapshot); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	loaded, err := store.Get(ctx, snapshot.SessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if loaded.TurnNumber != 7 || loaded.CampaignID != "camp_1" {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
	if len(loaded.PhaseData.Players) != 1 || loaded.PhaseData.Players[0].Name != "Iris" {
		t.Fatalf("roster lost in round trip: %+v", loaded.PhaseData.Players)
	}
	if loaded.PhaseData.World.Flags["encounter_hp"] != "6" {
		t.Fatalf("flags lost in round trip: %+v", loaded.PhaseData.World.Flags)
	}

	// A second Put replaces, not duplicates.
	snapshot.TurnNumber = 8
	if err := store.Put(ctx, snapshot.SessionID, snapshot); err != nil {
		t.Fatalf("second Put returned error: %v", err)
	}
	replaced, err := store.Get(ctx, snapshot.SessionID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if replaced.TurnNumber != 8 {
		t.Fatalf("expected turn 8 after replace, got %d", replaced.TurnNumber)
	}
}

func TestChronicleAppendAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	batchOne := []state.EventNode{
		{EventID: "evt_1", TurnNumber: 1, Phase: "resolution", Timestamp: testTime},
		{EventID: "evt_2", TurnNumber: 1, Phase: "narration", Timestamp: testTime},
	}
	batchTwo := []state.EventNode{
		{EventID: "evt_3", TurnNumber: 2, Phase: "narration", Timestamp: testTime.Add(time.Minute)},
	}
	if err := store.AppendEvents(ctx, "sess_1", batchOne); err != nil {
		t.Fatalf("AppendEvents returned error: %v", err)
	}
	if err := store.AppendEvents(ctx, "sess_1", batchTwo); err != nil {
		t.Fatalf("AppendEvents returned error: %v", err)
	}
	if err := store.AppendEvents(ctx, "sess_other", []state.EventNode{{EventID: "evt_x", Timestamp: testTime}}); err != nil {
		t.Fatalf("AppendEvents returned error: %v", err)
	}

	events, err := store.ListEvents(ctx, "sess_1")
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].EventID != "evt_1" || events[2].EventID != "evt_3" {
		t.Fatalf("chronicle order violated: %+v", events)
	}

	tail, err := store.TailEvents(ctx, "sess_1", 2)
	if err != nil {
		t.Fatalf("TailEvents returned error: %v", err)
	}
	if len(tail) != 2 || tail[0].EventID != "evt_2" || tail[1].EventID != "evt_3" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestSessionMetadataLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "sess_missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, session.ErrNotFound)
	}
	if err := store.TouchSession(ctx, "sess_missing", testTime, 1); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, session.ErrNotFound)
	}

	older := session.Metadata{
		SessionID: "sess_old", Title: "The First Tale",
		CreatedAt: testTime, LastPlayed: testTime, Status: session.StatusActive,
	}
	newer := session.Metadata{
		SessionID: "sess_new", Title: "The Second Tale",
		CreatedAt: testTime.Add(time.Hour), LastPlayed: testTime.Add(time.Hour), Status: session.StatusActive,
	}
	if err := store.CreateSession(ctx, older); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if err := store.CreateSession(ctx, newer); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "sess_new" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}

	if err := store.TouchSession(ctx, "sess_old", testTime.Add(2*time.Hour), 5); err != nil {
		t.Fatalf("TouchSession returned error: %v", err)
	}
	sessions, err = store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if sessions[0].SessionID != "sess_old" || sessions[0].TurnCount != 5 {
		t.Fatalf("touch did not reorder listing: %+v", sessions)
	}

	if err := store.CompleteSession(ctx, "sess_old", testTime.Add(3*time.Hour)); err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}
	meta, err := store.GetSession(ctx, "sess_old")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if meta.Status != session.StatusCompleted {
		t.Fatalf("status = %s, want completed", meta.Status)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	store := openStore(t)
	emitter := telemetry.NewEmitter(store)

	emitter.Emit(context.Background(), "sess_1", 3, "quality_gate_override", telemetry.SeverityWarning, "retries exhausted")

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM telemetry_events`).Scan(&count); err != nil {
		t.Fatalf("count query returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 telemetry row, got %d", count)
	}
}

func TestStoreBacksSessionManager(t *testing.T) {
	store := openStore(t)

	manager, err := session.NewManager(session.Config{
		Checkpoints: store,
		Chronicle:   store,
		Metadata:    store,
		Telemetry:   telemetry.NewEmitter(store),
		NewSeed:     func() int64 { return 42 },
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	view, err := manager.NewSession(context.Background(), session.NewSessionRequest{
		Title:    "The Stolen Relic",
		Premise:  "A stolen relic must be returned to the mountain shrine",
		Concepts: []string{"stoic knight", "wandering healer"},
	})
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}

	result, err := manager.ExecuteTurn(context.Background(), view.SessionID, view.Players[0].ID, "attack the bandit")
	if err != nil {
		t.Fatalf("ExecuteTurn returned error: %v", err)
	}
	if result.TurnNumber != 1 {
		t.Fatalf("expected turn 1, got %d", result.TurnNumber)
	}

	events, err := store.ListEvents(context.Background(), view.SessionID)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected opening plus turn events, got %d", len(events))
	}
}
