package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"spicysweet/models"
)

func testRoom(code string) *models.Room {
	return &models.Room{
		Code:   code,
		HostID: "p1",
		Players: map[string]*models.Player{
			"p1": {ID: "p1", Name: "Ana", Team: models.TeamSpicy, Online: true},
			"p2": {ID: "p2", Name: "Ben", Team: models.TeamSweet, Online: true},
		},
		State: models.State{
			Phase:                models.PhaseLobby,
			PhaseStep:            models.StepIdle,
			CurrentQuestionIndex: -1,
		},
		CreatedAt: time.Unix(100, 0),
	}
}

func TestMemoryPutGetRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.PutRoom(ctx, testRoom("ab12cd")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Codes are uppercase-normalized on every access.
	room, err := st.GetRoom(ctx, "ab12cd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.Code != "AB12CD" {
		t.Fatalf("code = %q, want normalized AB12CD", room.Code)
	}
	if room.Player("p1") == nil || room.Player("p1").Name != "Ana" {
		t.Fatalf("players did not round-trip: %+v", room.Players)
	}
}

func TestMemoryGetMissingRoom(t *testing.T) {
	st := NewMemory()
	_, err := st.GetRoom(context.Background(), "NOPE99")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateCommitsMutation(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	updated, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		room.State.Phase = models.PhaseBuzzer
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.State.Phase != models.PhaseBuzzer {
		t.Fatalf("returned phase = %s, want buzzer", updated.State.Phase)
	}

	room, err := st.GetRoom(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.State.Phase != models.PhaseBuzzer {
		t.Fatalf("stored phase = %s, want buzzer", room.State.Phase)
	}
}

func TestMemoryUpdateErrorDiscardsMutation(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	boom := errors.New("validation failed")
	_, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		room.State.Phase = models.PhaseFinal
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped validation error", err)
	}

	room, err := st.GetRoom(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.State.Phase != models.PhaseLobby {
		t.Fatalf("phase = %s, want untouched lobby", room.State.Phase)
	}
}

func TestMemoryUpdateHandsOutPrivateCopies(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	var leaked *models.Room
	_, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		leaked = room
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// Mutating the escaped value after commit must not bleed into the store.
	leaked.HostID = "intruder"
	room, err := st.GetRoom(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.HostID != "p1" {
		t.Fatalf("host = %q, want p1", room.HostID)
	}
}

func TestMemoryIncrScoreMergesIntoReads(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := st.IncrScore(ctx, "AB12CD", "p1", 2); err != nil {
		t.Fatalf("first incr: %v", err)
	}
	total, err := st.IncrScore(ctx, "AB12CD", "p1", 1)
	if err != nil {
		t.Fatalf("second incr: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	room, err := st.GetRoom(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.Player("p1").Score != 3 {
		t.Fatalf("p1 score = %d, want 3", room.Player("p1").Score)
	}
	if room.Player("p2").Score != 0 {
		t.Fatalf("p2 score = %d, want 0", room.Player("p2").Score)
	}
}

func TestMemoryScoresSurviveRoomUpdates(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := st.IncrScore(ctx, "AB12CD", "p1", 5); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		room.State.Phase = models.PhaseRace
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	room, err := st.GetRoom(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.Player("p1").Score != 5 {
		t.Fatalf("p1 score = %d, want 5 after unrelated update", room.Player("p1").Score)
	}
}

func TestMemoryDeleteRoom(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := st.DeleteRoom(ctx, "AB12CD"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetRoom(ctx, "AB12CD"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemorySubscribeDeliversUpdates(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	ch, cancel, err := st.Subscribe(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := st.UpdateRoom(ctx, "AB12CD", func(room *models.Room) error {
		room.State.Phase = models.PhaseBuzzer
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != "room_updated" {
			t.Fatalf("event type = %q, want room_updated", ev.Type)
		}
		if ev.Room == nil || ev.Room.State.Phase != models.PhaseBuzzer {
			t.Fatalf("event room = %+v, want buzzer phase", ev.Room)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestMemorySubscribeCancelClosesChannel(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.PutRoom(ctx, testRoom("AB12CD")); err != nil {
		t.Fatalf("put: %v", err)
	}

	ch, cancel, err := st.Subscribe(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
}
