package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"spicysweet/models"
	"spicysweet/store"
)

func newMemoryFixture(t *testing.T) (*MemoryService, store.Store) {
	t.Helper()
	st := store.NewMemory()
	questions := &fakeQuestions{
		memory: []models.MemoryItem{
			{ID: 30, Text: "Cinnamon"},
			{ID: 31, Text: "Wasabi"},
		},
	}
	svc := NewMemoryService(st, questions, &fakeHub{})
	seedRoom(t, st, models.PhaseMemory)
	return svc, st
}

func TestMemorySoloTeamsSkipSelection(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()

	// Both rosters are a single real online player, so selection is moot.
	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}

	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepMemorizing {
		t.Fatalf("step = %s, want memorizing", room.State.PhaseStep)
	}
	ms := room.State.Memory
	if ms.Representatives[models.TeamSpicy] != "p1" || ms.Representatives[models.TeamSweet] != "p2" {
		t.Fatalf("representatives = %v, want auto-assigned p1/p2", ms.Representatives)
	}
	if ms.MemorizeStarted != 5000 {
		t.Fatalf("memorize started = %d, want 5000", ms.MemorizeStarted)
	}
}

func TestMemoryVoteMajorityPicksRepresentative(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p3", Name: "Cal", Team: models.TeamSpicy, Online: true})
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p4", Name: "Dee", Team: models.TeamSpicy, Online: true})

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepSelecting {
		t.Fatalf("step = %s, want selecting with a multi-player team", room.State.PhaseStep)
	}
	// Sweet is still a solo roster and got its representative up front.
	if got := room.State.Memory.Representatives[models.TeamSweet]; got != "p2" {
		t.Fatalf("sweet representative = %q, want p2", got)
	}

	at := time.UnixMilli(6000)
	if err := svc.SubmitVote(ctx, "AB12CD", "p1", "p3", at); err != nil {
		t.Fatalf("p1 vote: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p3", "p3", at); err != nil {
		t.Fatalf("p3 vote: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p4", "p1", at); err != nil {
		t.Fatalf("p4 vote: %v", err)
	}

	room = getRoom(t, st, "AB12CD")
	if got := room.State.Memory.Representatives[models.TeamSpicy]; got != "p3" {
		t.Fatalf("spicy representative = %q, want majority pick p3", got)
	}
	if room.State.PhaseStep != models.StepMemorizing {
		t.Fatalf("step = %s, want memorizing once both slots filled", room.State.PhaseStep)
	}
}

func TestMemoryVoteTieGoesToEarliestCandidate(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p3", Name: "Cal", Team: models.TeamSpicy, Online: true})

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}

	// One vote each: the candidate whose first vote arrived earlier wins.
	if err := svc.SubmitVote(ctx, "AB12CD", "p1", "p3", time.UnixMilli(6000)); err != nil {
		t.Fatalf("p1 vote: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p3", "p1", time.UnixMilli(6100)); err != nil {
		t.Fatalf("p3 vote: %v", err)
	}

	if got := getRoom(t, st, "AB12CD").State.Memory.Representatives[models.TeamSpicy]; got != "p3" {
		t.Fatalf("spicy representative = %q, want first-reported p3", got)
	}
}

func TestMemoryVoterVotesOnce(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p3", Name: "Cal", Team: models.TeamSpicy, Online: true})
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p4", Name: "Dee", Team: models.TeamSpicy, Online: true})

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p1", "p3", time.UnixMilli(6000)); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	err := svc.SubmitVote(ctx, "AB12CD", "p1", "p1", time.UnixMilli(6100))
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second vote: err = %v, want ErrAlreadyAnswered", err)
	}
}

func TestMemoryCrossTeamVoteRejected(t *testing.T) {
	svc, _ := newMemoryFixture(t)
	ctx := context.Background()

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Both teams are solo, so selection was skipped; a vote now is stale.
	err := svc.SubmitVote(ctx, "AB12CD", "p1", "p2", time.UnixMilli(6000))
	if err == nil || !IsNoOp(err) {
		t.Fatalf("vote after selection: err = %v, want silent no-op", err)
	}
}

func TestMemoryRecallScoringAndWinner(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.StartAnswering(ctx, "AB12CD"); err != nil {
		t.Fatalf("start answering: %v", err)
	}

	// p1 recalls both items, p2 gets only the first.
	for _, c := range []struct {
		player string
		answer string
		want   bool
	}{
		{"p1", "  cinnamon ", true},
		{"p1", "Wasabi", true},
		{"p2", "cinnamon", true},
		{"p2", "pepper", false},
	} {
		got, err := svc.SubmitRecall(ctx, "AB12CD", c.player, c.answer)
		if err != nil {
			t.Fatalf("%s recall %q: %v", c.player, c.answer, err)
		}
		if got != c.want {
			t.Fatalf("%s recall %q = %v, want %v", c.player, c.answer, got, c.want)
		}
	}

	room := getRoom(t, st, "AB12CD")
	if room.State.PhaseStep != models.StepResult {
		t.Fatalf("step = %s, want result with both sequences exhausted", room.State.PhaseStep)
	}
	if room.State.RoundWinner != models.TeamSpicy {
		t.Fatalf("winner = %s, want spicy", room.State.RoundWinner)
	}
	if got := playerScore(t, st, "AB12CD", "p1"); got != 2 {
		t.Fatalf("p1 score = %d, want 2", got)
	}
	if got := playerScore(t, st, "AB12CD", "p2"); got != 1 {
		t.Fatalf("p2 score = %d, want 1", got)
	}
}

func TestMemoryOnlyRepresentativeRecalls(t *testing.T) {
	svc, st := newMemoryFixture(t)
	ctx := context.Background()
	addPlayer(t, st, "AB12CD", &models.Player{ID: "p3", Name: "Cal", Team: models.TeamSpicy, Online: true})

	if err := svc.Start(ctx, "AB12CD", time.UnixMilli(5000)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p1", "p1", time.UnixMilli(6000)); err != nil {
		t.Fatalf("p1 vote: %v", err)
	}
	if err := svc.SubmitVote(ctx, "AB12CD", "p3", "p1", time.UnixMilli(6100)); err != nil {
		t.Fatalf("p3 vote: %v", err)
	}
	if err := svc.StartAnswering(ctx, "AB12CD"); err != nil {
		t.Fatalf("start answering: %v", err)
	}

	_, err := svc.SubmitRecall(ctx, "AB12CD", "p3", "cinnamon")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("non-representative recall: err = %v, want ErrRejected", err)
	}
}
